// Package store is the resource store: the only component that writes to
// the revision ledger.
//
// Every write follows the same gate order, and the first failing gate
// decides the error:
//
//  1. the resource exists (ResourceNotFound), or for creates does not
//     (ResourceAlreadyExists)
//  2. the caller's expected revision equals the current one
//     (IncorrectRevisionProvided)
//  3. the resource is not deprecated (<Kind>IsDeprecated)
//  4. kind rules: parents exist and are live, instances need a published
//     schema, published schemas are frozen
//  5. payload validation (IllegalSchema, ShapeConstraintViolations)
//
// Only then is revision current+1 appended. Writers to the same resource
// are serialized by a per-resource lock; different resources proceed in
// parallel. Reads never take the lock and see committed revisions only.
//
// Observers receive every committed snapshot while the resource lock is
// still held, so for a given resource they observe revisions in order.
// Observers must return quickly; the search indexer and the commit
// notifier only enqueue.
package store
