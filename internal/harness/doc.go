// Package harness runs HTTP conformance scenarios against a complete,
// freshly built nexus stack.
//
// A scenario is a YAML file of request steps. Each step sends one request
// to the API handler and checks the response status, error code, body
// fields and text. Values captured from earlier responses are substituted
// into later paths as ${name}. Steps marked eventually are retried with
// bounded exponential backoff, which is how scenarios observe the
// asynchronously updated search index.
//
// Every run uses a deterministic clock and id sequence, so the outcome
// summary is stable and is compared against a golden file:
//
//	go test ./internal/harness -update
//
// regenerates testdata/golden.
package harness
