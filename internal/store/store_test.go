package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/testutil"
)

func TestCreateTwiceFails(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	snap, err := s.Create(ctx, testOrg, doc.Object{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Rev)
	assert.Equal(t, resource.EventCreated, snap.Event)
	assert.False(t, snap.Deprecated)

	_, err = s.Create(ctx, testOrg, doc.Object{})
	require.Error(t, err)
	assert.Equal(t, resource.CategoryAlreadyExists, resource.CategoryOf(err))
}

func TestCreateRequiresLiveParent(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, testDomain, doc.Object{})
	require.Error(t, err)
	assert.True(t, resource.IsNotFound(err))

	_, err = s.Create(ctx, testOrg, doc.Object{})
	require.NoError(t, err)
	_, err = s.Deprecate(ctx, testOrg, 1)
	require.NoError(t, err)

	_, err = s.Create(ctx, testDomain, doc.Object{})
	require.Error(t, err)
	assert.Equal(t, "OrganizationIsDeprecated", resource.Code(err))
	assert.Equal(t, resource.CategoryDeprecated, resource.CategoryOf(err))
}

func TestCreateRejectsNilPayload(t *testing.T) {
	s, _ := createTestStore(t)
	_, err := s.Create(context.Background(), testOrg, nil)
	assert.Equal(t, resource.CodeIllegalPayload, resource.Code(err))
}

func TestCreateWaitsForParentLock(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	seedPublishedSchema(t, s)

	unlock := s.locks.Lock(testSchema.Path)
	result := make(chan error, 1)
	go func() {
		_, err := s.CreateInstance(ctx, testSchema, testutil.MustObject(t, testutil.Einstein))
		result <- err
	}()
	assert.Never(t, func() bool { return len(result) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	cur, err := s.ledger.Get(ctx, testSchema, 0)
	require.NoError(t, err)
	next := cur.Next(resource.EventDeprecated, time.Now())
	next.Deprecated = true
	_, err = s.ledger.Append(ctx, next)
	require.NoError(t, err)
	unlock()

	err = <-result
	require.Error(t, err)
	assert.Equal(t, "SchemaIsDeprecated", resource.Code(err))
	assert.Equal(t, 0, s.locks.size())
}

// Scenario A: optimistic concurrency on an instance.
func TestUpdateRevisionGate(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	seedPublishedSchema(t, s)

	inst, err := s.CreateInstance(ctx, testSchema, testutil.MustObject(t, testutil.Einstein))
	require.NoError(t, err)
	require.Equal(t, int64(1), inst.Rev)
	assert.Equal(t, "00000000-0000-7000-8000-000000000001", inst.Ref.Name())

	_, err = s.Update(ctx, inst.Ref, testutil.MustObject(t, `{"familyName": "Bohr"}`), 5)
	require.Error(t, err)
	assert.Equal(t, resource.CodeIncorrectRevision, resource.Code(err))

	updated, err := s.Update(ctx, inst.Ref, testutil.MustObject(t, `{"familyName": "Bohr"}`), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Rev)
	assert.Equal(t, resource.EventUpdated, updated.Event)

	_, err = s.Update(ctx, inst.Ref, testutil.MustObject(t, `{"familyName": "Curie"}`), 1)
	require.Error(t, err)
	assert.True(t, resource.IsConflict(err))

	cur, err := s.Read(ctx, inst.Ref, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cur.Rev)
	assert.Equal(t, doc.String("Bohr"), cur.Payload["familyName"])
}

func TestUpdateUnknownResource(t *testing.T) {
	s, _ := createTestStore(t)
	_, err := s.Update(context.Background(), testOrg, doc.Object{}, 1)
	assert.True(t, resource.IsNotFound(err))

	_, err = s.Deprecate(context.Background(), testOrg, 1)
	assert.True(t, resource.IsNotFound(err))
}

// Scenario D: deprecation is a revision event and is terminal.
func TestDeprecate(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	seedPublishedSchema(t, s)

	inst, err := s.CreateInstance(ctx, testSchema, testutil.MustObject(t, testutil.Einstein))
	require.NoError(t, err)

	_, err = s.Deprecate(ctx, inst.Ref, 2)
	assert.True(t, resource.IsConflict(err))

	dep, err := s.Deprecate(ctx, inst.Ref, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dep.Rev)
	assert.True(t, dep.Deprecated)
	assert.Equal(t, resource.EventDeprecated, dep.Event)
	assert.Equal(t, inst.PayloadHash, dep.PayloadHash)

	_, err = s.Update(ctx, inst.Ref, testutil.MustObject(t, testutil.Einstein), 2)
	require.Error(t, err)
	assert.Equal(t, "InstanceIsDeprecated", resource.Code(err))
	assert.Equal(t, resource.CategoryDeprecated, resource.CategoryOf(err))

	// Stale revision against a deprecated resource reports the conflict.
	_, err = s.Update(ctx, inst.Ref, testutil.MustObject(t, testutil.Einstein), 1)
	assert.True(t, resource.IsConflict(err))

	_, err = s.Deprecate(ctx, inst.Ref, 2)
	require.Error(t, err)
	assert.Equal(t, "InstanceAlreadyDeprecated", resource.Code(err))

	first, err := s.Read(ctx, inst.Ref, 1)
	require.NoError(t, err)
	assert.False(t, first.Deprecated)
}

// Scenario E: validation gates instance writes without advancing revisions.
func TestInstanceValidation(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	seedPublishedSchema(t, s)

	_, err := s.CreateInstance(ctx, testSchema, testutil.MustObject(t, testutil.Einstein))
	require.NoError(t, err)

	_, err = s.CreateInstance(ctx, testSchema, testutil.MustObject(t, `{"givenName": "Albert"}`))
	require.Error(t, err)
	assert.Equal(t, resource.CodeShapeConstraintViolations, resource.Code(err))
	assert.Equal(t, resource.CategoryInvalidPayload, resource.CategoryOf(err))

	_, err = s.Read(ctx, resource.MustRef("bbp", "core", "person", "v1.0.0", "00000000-0000-7000-8000-000000000002"), 0)
	assert.True(t, resource.IsNotFound(err))

	inst := resource.MustRef("bbp", "core", "person", "v1.0.0", "00000000-0000-7000-8000-000000000001")
	_, err = s.Update(ctx, inst, testutil.MustObject(t, `{"height": 1.8}`), 1)
	require.Error(t, err)
	assert.Equal(t, resource.CodeShapeConstraintViolations, resource.Code(err))

	cur, err := s.Read(ctx, inst, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cur.Rev)
}

func TestInstanceRequiresPublishedSchema(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, testOrg, doc.Object{})
	require.NoError(t, err)
	_, err = s.Create(ctx, testDomain, doc.Object{})
	require.NoError(t, err)
	_, err = s.Create(ctx, testSchema, testutil.MustObject(t, testutil.PersonSchema))
	require.NoError(t, err)

	_, err = s.CreateInstance(ctx, testSchema, testutil.MustObject(t, testutil.Einstein))
	require.Error(t, err)
	assert.Equal(t, resource.CodeSchemaNotPublished, resource.Code(err))
}

func TestSchemaRules(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, testOrg, doc.Object{})
	require.NoError(t, err)
	_, err = s.Create(ctx, testDomain, doc.Object{})
	require.NoError(t, err)

	_, err = s.Create(ctx, testSchema, testutil.MustObject(t, `{"shapes": 3}`))
	require.Error(t, err)
	assert.Equal(t, resource.CodeIllegalSchema, resource.Code(err))

	_, err = s.Create(ctx, testSchema, testutil.MustObject(t, testutil.PersonSchema))
	require.NoError(t, err)

	_, err = s.Publish(ctx, testSchema, 3)
	assert.True(t, resource.IsConflict(err))

	pub, err := s.Publish(ctx, testSchema, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pub.Rev)
	assert.True(t, pub.Published)

	again, err := s.Publish(ctx, testSchema, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Rev, "publishing twice must not append")

	_, err = s.Update(ctx, testSchema, testutil.MustObject(t, testutil.PersonSchema), 2)
	require.Error(t, err)
	assert.Equal(t, resource.CodeSchemaPublished, resource.Code(err))

	_, err = s.Publish(ctx, testDomain, 1)
	assert.Equal(t, resource.CodeIllegalRef, resource.Code(err))
}

func TestDeprecatedSchemaRejectsInstances(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	seedPublishedSchema(t, s)

	_, err := s.Deprecate(ctx, testSchema, 2)
	require.NoError(t, err)

	_, err = s.CreateInstance(ctx, testSchema, testutil.MustObject(t, testutil.Einstein))
	require.Error(t, err)
	assert.Equal(t, "SchemaIsDeprecated", resource.Code(err))

	_, err = s.Publish(ctx, testSchema, 3)
	assert.Equal(t, "SchemaIsDeprecated", resource.Code(err))
}

func TestSetAttachmentSharesRevisionCounter(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	seedPublishedSchema(t, s)

	inst, err := s.CreateInstance(ctx, testSchema, testutil.MustObject(t, testutil.Einstein))
	require.NoError(t, err)

	_, err = s.SetAttachment(ctx, inst.Ref, 1, nil)
	require.Error(t, err)
	assert.Equal(t, resource.CodeAttachmentNotFound, resource.Code(err))

	att := &resource.Attachment{Filename: "a.txt", MediaType: "text/plain", Size: 1, Digest: "d1"}
	snap, err := s.SetAttachment(ctx, inst.Ref, 1, att)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Rev)
	assert.Equal(t, resource.EventAttached, snap.Event)

	upd, err := s.Update(ctx, inst.Ref, testutil.MustObject(t, testutil.Einstein), 2)
	require.NoError(t, err)
	require.NotNil(t, upd.Attachment, "attachment carries over updates")
	assert.Equal(t, "d1", upd.Attachment.Digest)

	det, err := s.SetAttachment(ctx, inst.Ref, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), det.Rev)
	assert.Nil(t, det.Attachment)
	assert.Equal(t, resource.EventDetached, det.Event)

	_, err = s.SetAttachment(ctx, testSchema, 2, att)
	assert.Equal(t, resource.CodeIllegalRef, resource.Code(err))
}

func TestObserversSeeRevisionsInOrder(t *testing.T) {
	s, rec := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, testOrg, doc.Object{})
	require.NoError(t, err)
	for rev := int64(1); rev <= 5; rev++ {
		_, err := s.Update(ctx, testOrg, doc.Object{"n": doc.Int(rev)}, rev)
		require.NoError(t, err)
	}
	// Failed writes are not observed.
	_, err = s.Update(ctx, testOrg, doc.Object{}, 1)
	require.Error(t, err)

	snaps := rec.all()
	require.Len(t, snaps, 6)
	for i, snap := range snaps {
		assert.Equal(t, int64(i+1), snap.Rev)
		assert.Positive(t, snap.Seq)
	}
}

// Concurrent writers with the same expected revision: exactly one wins.
func TestConcurrentUpdatesTieBreak(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, testOrg, doc.Object{})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, testOrg, doc.Object{"writer": doc.Int(int64(i))}, 1)
			switch {
			case err == nil:
				wins.Add(1)
			case resource.IsConflict(err):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(9), conflicts.Load())

	hist, err := s.History(ctx, testOrg)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	assert.Equal(t, 0, s.locks.size())
}

func TestReadIsIdempotent(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, testOrg, doc.Object{"a": doc.String("b")})
	require.NoError(t, err)

	first, err := s.Read(ctx, testOrg, 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := s.Read(ctx, testOrg, 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	_, err = s.Read(ctx, testOrg, 2)
	assert.True(t, resource.IsNotFound(err))
}
