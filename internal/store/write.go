package store

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/tracing"
	"github.com/roach88/nexus/internal/validate"
)

// Create commits revision 1 of ref.
//
// The parent must exist and be live. Schema payloads must compile to a
// ruleset; instance payloads must satisfy their published schema.
func (s *Store) Create(ctx context.Context, ref resource.Ref, payload doc.Object) (snap resource.Snapshot, err error) {
	ctx, done := s.begin(ctx, "create", ref, 0)
	defer func() { done(err) }()

	if payload == nil {
		return resource.Snapshot{}, resource.ErrIllegalPayload("body must be a JSON object")
	}

	unlock := s.lockWithParent(ref)
	defer unlock()

	_, err = s.ledger.Get(ctx, ref, 0)
	switch {
	case err == nil:
		return resource.Snapshot{}, resource.ErrAlreadyExists(ref)
	case !resource.IsNotFound(err):
		return resource.Snapshot{}, err
	}

	if err := s.checkPayload(ctx, ref, payload); err != nil {
		return resource.Snapshot{}, err
	}

	return s.commit(ctx, resource.Snapshot{
		Ref:       ref,
		Rev:       1,
		Event:     resource.EventCreated,
		Payload:   payload,
		CreatedAt: s.clock.Now(),
	})
}

// CreateInstance names a new instance of schema and creates it.
func (s *Store) CreateInstance(ctx context.Context, schema resource.Ref, payload doc.Object) (resource.Snapshot, error) {
	if schema.Kind != resource.KindSchema {
		return resource.Snapshot{}, resource.ErrIllegalRef(schema.Path, "instances are created under a schema")
	}
	ref, err := schema.Child(s.ids.Generate())
	if err != nil {
		return resource.Snapshot{}, err
	}
	return s.Create(ctx, ref, payload)
}

// Update replaces the payload of ref, producing revision expectedRev+1.
// Attachment and publication state carry over unchanged.
func (s *Store) Update(ctx context.Context, ref resource.Ref, payload doc.Object, expectedRev int64) (snap resource.Snapshot, err error) {
	ctx, done := s.begin(ctx, "update", ref, expectedRev)
	defer func() { done(err) }()

	if payload == nil {
		return resource.Snapshot{}, resource.ErrIllegalPayload("body must be a JSON object")
	}

	unlock := s.lockWithParent(ref)
	defer unlock()

	cur, err := s.current(ctx, ref, expectedRev)
	if err != nil {
		return resource.Snapshot{}, err
	}
	if cur.Deprecated {
		return resource.Snapshot{}, resource.ErrDeprecated(ref)
	}
	if ref.Kind == resource.KindSchema && cur.Published {
		return resource.Snapshot{}, resource.ErrSchemaPublished(ref)
	}
	if err := s.checkPayload(ctx, ref, payload); err != nil {
		return resource.Snapshot{}, err
	}

	next := cur.Next(resource.EventUpdated, s.clock.Now())
	next.Payload = payload
	next.PayloadHash = ""
	return s.commit(ctx, next)
}

// Deprecate marks ref deprecated in a new revision. The payload and any
// attachment carry over; the deprecated revision stays readable forever.
func (s *Store) Deprecate(ctx context.Context, ref resource.Ref, expectedRev int64) (snap resource.Snapshot, err error) {
	ctx, done := s.begin(ctx, "deprecate", ref, expectedRev)
	defer func() { done(err) }()

	unlock := s.locks.Lock(ref.Path)
	defer unlock()

	cur, err := s.current(ctx, ref, expectedRev)
	if err != nil {
		return resource.Snapshot{}, err
	}
	if cur.Deprecated {
		return resource.Snapshot{}, resource.ErrAlreadyDeprecated(ref)
	}

	next := cur.Next(resource.EventDeprecated, s.clock.Now())
	next.Deprecated = true
	return s.commit(ctx, next)
}

// Publish makes a schema available for instances. Publishing an already
// published schema at its current revision returns that revision without
// appending a new one.
func (s *Store) Publish(ctx context.Context, ref resource.Ref, expectedRev int64) (snap resource.Snapshot, err error) {
	ctx, done := s.begin(ctx, "publish", ref, expectedRev)
	defer func() { done(err) }()

	if ref.Kind != resource.KindSchema {
		return resource.Snapshot{}, resource.ErrIllegalRef(ref.Path, "only schemas can be published")
	}

	unlock := s.locks.Lock(ref.Path)
	defer unlock()

	cur, err := s.current(ctx, ref, expectedRev)
	if err != nil {
		return resource.Snapshot{}, err
	}
	if cur.Deprecated {
		return resource.Snapshot{}, resource.ErrDeprecated(ref)
	}
	if cur.Published {
		return cur, nil
	}

	next := cur.Next(resource.EventPublished, s.clock.Now())
	next.Published = true
	return s.commit(ctx, next)
}

// SetAttachment records a new attachment on an instance, or removes the
// current one when a is nil. Either way the instance revision advances.
func (s *Store) SetAttachment(ctx context.Context, ref resource.Ref, expectedRev int64, a *resource.Attachment) (snap resource.Snapshot, err error) {
	op := "attach"
	if a == nil {
		op = "detach"
	}
	ctx, done := s.begin(ctx, op, ref, expectedRev)
	defer func() { done(err) }()

	if ref.Kind != resource.KindInstance {
		return resource.Snapshot{}, resource.ErrIllegalRef(ref.Path, "attachments belong to instances")
	}

	unlock := s.locks.Lock(ref.Path)
	defer unlock()

	cur, err := s.current(ctx, ref, expectedRev)
	if err != nil {
		return resource.Snapshot{}, err
	}
	if cur.Deprecated {
		return resource.Snapshot{}, resource.ErrDeprecated(ref)
	}
	if a == nil && cur.Attachment == nil {
		return resource.Snapshot{}, resource.ErrAttachmentNotFound(ref, cur.Rev)
	}

	event := resource.EventAttached
	if a == nil {
		event = resource.EventDetached
	}
	next := cur.Next(event, s.clock.Now())
	next.Attachment = a
	return s.commit(ctx, next)
}

// lockWithParent locks ref's parent and then ref, for writes whose checks
// read the parent. Ancestors are always locked before descendants.
func (s *Store) lockWithParent(ref resource.Ref) func() {
	parent, ok := ref.Parent()
	if !ok {
		return s.locks.Lock(ref.Path)
	}
	unlockParent := s.locks.Lock(parent.Path)
	unlock := s.locks.Lock(ref.Path)
	return func() {
		unlock()
		unlockParent()
	}
}

// current loads the head of ref and applies the revision gate.
func (s *Store) current(ctx context.Context, ref resource.Ref, expectedRev int64) (resource.Snapshot, error) {
	cur, err := s.ledger.Get(ctx, ref, 0)
	if err != nil {
		return resource.Snapshot{}, err
	}
	if expectedRev != cur.Rev {
		return resource.Snapshot{}, resource.ErrIncorrectRevision(ref, expectedRev, cur.Rev)
	}
	return cur, nil
}

// checkPayload applies the parent and payload rules for ref's kind. The
// caller holds the parent lock, so the parent cannot change underneath.
func (s *Store) checkPayload(ctx context.Context, ref resource.Ref, payload doc.Object) error {
	parentRef, hasParent := ref.Parent()
	var parent resource.Snapshot
	if hasParent {
		p, err := s.ledger.Get(ctx, parentRef, 0)
		if err != nil {
			return err
		}
		if p.Deprecated {
			return resource.ErrDeprecated(parentRef)
		}
		parent = p
	}

	if s.validator == nil {
		if ref.Kind == resource.KindInstance && !parent.Published {
			return resource.ErrSchemaNotPublished(parentRef)
		}
		return nil
	}

	switch ref.Kind {
	case resource.KindSchema:
		if err := s.validator.CheckSchema(payload); err != nil {
			return resource.ErrIllegalSchema(ref, err)
		}
	case resource.KindInstance:
		if !parent.Published {
			return resource.ErrSchemaNotPublished(parentRef)
		}
		if err := s.validator.Validate(parent.Payload, payload); err != nil {
			var ve *validate.ValidationError
			if errors.As(err, &ve) {
				return resource.ErrShapeViolations(ref, ve.Violations)
			}
			return resource.ErrIllegalSchema(parentRef, err)
		}
	}
	return nil
}

// commit appends snap and notifies observers. The caller holds the ref lock.
func (s *Store) commit(ctx context.Context, snap resource.Snapshot) (resource.Snapshot, error) {
	committed, err := s.ledger.Append(ctx, snap)
	if err != nil {
		if resource.Code(err) == resource.CodeLedgerSequenceGap {
			s.logger.Error("ledger sequence gap", "ref", snap.Ref.String(), "rev", snap.Rev, "error", err)
		}
		return resource.Snapshot{}, err
	}
	s.logger.Debug("revision committed",
		"ref", committed.Ref.String(),
		"rev", committed.Rev,
		"event", string(committed.Event),
		"seq", committed.Seq)
	s.notify(committed)
	return committed, nil
}

// begin opens a span for a write and returns the function that closes it
// and records metrics.
func (s *Store) begin(ctx context.Context, op string, ref resource.Ref, expectedRev int64) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "store."+op)
	span.SetAttributes(tracing.RefAttributes(ref)...)
	if expectedRev > 0 {
		span.SetAttributes(attribute.Int64(tracing.AttrKeyExpectedRev, expectedRev))
	}
	return ctx, func(err error) {
		s.metrics.ObserveWrite(ref.Kind, op, err, time.Since(start))
		if err != nil {
			tracing.SetSpanError(ctx, err)
		}
		span.End()
	}
}
