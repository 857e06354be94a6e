package store

import (
	"context"

	"github.com/roach88/nexus/internal/resource"
)

// Read returns revision rev of ref; rev 0 is the current revision.
// Reads take no lock and never observe a partially applied write.
func (s *Store) Read(ctx context.Context, ref resource.Ref, rev int64) (resource.Snapshot, error) {
	if rev < 0 {
		return resource.Snapshot{}, resource.ErrNotFound(ref, rev)
	}
	return s.ledger.Get(ctx, ref, rev)
}

// History returns every revision of ref, oldest first.
func (s *Store) History(ctx context.Context, ref resource.Ref) ([]resource.Snapshot, error) {
	return s.ledger.History(ctx, ref)
}
