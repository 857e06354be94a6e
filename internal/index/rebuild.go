package index

import (
	"context"
	"fmt"

	"github.com/roach88/nexus/internal/resource"
)

// Source replays committed revisions in commit order.
type Source interface {
	Scan(ctx context.Context, afterSeq int64, limit int) ([]resource.Snapshot, error)
}

const rebuildBatch = 500

// Rebuild discards the projection and replays src into it synchronously.
// It should not run while workers are applying live commits.
func (ix *Index) Rebuild(ctx context.Context, src Source) (int, error) {
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM search_fields`); err != nil {
		return 0, fmt.Errorf("clear fields: %w", err)
	}
	if _, err := ix.db.ExecContext(ctx, `DELETE FROM search_documents`); err != nil {
		return 0, fmt.Errorf("clear documents: %w", err)
	}
	ix.mu.Lock()
	clear(ix.indexed)
	ix.mu.Unlock()

	var (
		after int64
		total int
	)
	for {
		batch, err := src.Scan(ctx, after, rebuildBatch)
		if err != nil {
			return total, fmt.Errorf("scan ledger: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, snap := range batch {
			if err := ix.apply(ctx, snap); err != nil {
				return total, fmt.Errorf("apply %s@%d: %w", snap.Ref, snap.Rev, err)
			}
			ix.settle(snap.Ref, snap.Rev, nil)
			after = snap.Seq
			total++
		}
	}
	ix.logger.Info("search index rebuilt", "revisions", total)
	return total, nil
}
