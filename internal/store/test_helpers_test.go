package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nexus/internal/ledger"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/testutil"
	"github.com/roach88/nexus/internal/validate"
)

var (
	testOrg    = resource.MustRef("bbp")
	testDomain = resource.MustRef("bbp", "core")
	testSchema = resource.MustRef("bbp", "core", "person", "v1.0.0")
)

// recorder is an Observer that keeps every committed snapshot.
type recorder struct {
	mu    sync.Mutex
	snaps []resource.Snapshot
}

func (r *recorder) Committed(s resource.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []resource.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]resource.Snapshot(nil), r.snaps...)
}

// createTestStore opens a fresh ledger with a real validator and
// deterministic clock and ids.
func createTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	rec := &recorder{}
	s := New(l,
		WithValidator(validate.New(nil)),
		WithObserver(rec),
		WithClock(testutil.NewStepClock()),
		WithIDGenerator(testutil.NewSequenceIDs()),
	)
	return s, rec
}

// seedPublishedSchema creates org, domain and a published person schema.
func seedPublishedSchema(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Create(ctx, testOrg, testutil.MustObject(t, `{"description": "org"}`))
	require.NoError(t, err)
	_, err = s.Create(ctx, testDomain, testutil.MustObject(t, `{"description": "domain"}`))
	require.NoError(t, err)
	_, err = s.Create(ctx, testSchema, testutil.MustObject(t, testutil.PersonSchema))
	require.NoError(t, err)
	_, err = s.Publish(ctx, testSchema, 1)
	require.NoError(t, err)
}
