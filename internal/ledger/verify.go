package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/nexus/internal/resource"
)

// Gap describes a resource whose revisions are not the dense run 1..N.
type Gap struct {
	Ref   resource.Ref
	Count int64
	Min   int64
	Max   int64
}

func (g Gap) String() string {
	return fmt.Sprintf("%s: %d revisions spanning %d..%d", g.Ref, g.Count, g.Min, g.Max)
}

// Verify checks revision density for every resource in the ledger.
// An empty result means the ledger is consistent.
func (l *Ledger) Verify(ctx context.Context) ([]Gap, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT resource_id, kind, COUNT(*), MIN(rev), MAX(rev)
		FROM revisions
		GROUP BY resource_id, kind
		HAVING MIN(rev) != 1 OR MAX(rev) != COUNT(*)
		ORDER BY resource_id COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("verify ledger: %w", err)
	}
	defer rows.Close()

	gaps := []Gap{}
	for rows.Next() {
		var (
			g          Gap
			resourceID string
			kind       string
		)
		if err := rows.Scan(&resourceID, &kind, &g.Count, &g.Min, &g.Max); err != nil {
			return nil, fmt.Errorf("scan gap: %w", err)
		}
		g.Ref = resource.Ref{Kind: resource.Kind(kind), Path: resourceID}
		gaps = append(gaps, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gaps: %w", err)
	}
	return gaps, nil
}
