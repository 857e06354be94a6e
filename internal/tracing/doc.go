// Package tracing carries an OpenTelemetry tracer in a context.Context so
// that instrumented code needs no package globals, and builds the tracer
// provider used by the server.
//
// Code that is handed a context without a tracer gets a no-op tracer, so
// spans are always safe to start.
package tracing
