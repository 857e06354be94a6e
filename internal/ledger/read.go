package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nexus/internal/resource"
)

// Get returns revision rev of ref, or the latest revision when rev is 0.
// Missing resources and revisions return a ResourceNotFound error.
func (l *Ledger) Get(ctx context.Context, ref resource.Ref, rev int64) (resource.Snapshot, error) {
	var row *sql.Row
	if rev == 0 {
		row = l.db.QueryRowContext(ctx, `
			SELECT `+snapshotColumns+`
			FROM revisions
			WHERE resource_id = ?
			ORDER BY rev DESC
			LIMIT 1
		`, ref.Path)
	} else {
		row = l.db.QueryRowContext(ctx, `
			SELECT `+snapshotColumns+`
			FROM revisions
			WHERE resource_id = ? AND rev = ?
		`, ref.Path, rev)
	}

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return resource.Snapshot{}, resource.ErrNotFound(ref, rev)
	}
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("get %s: %w", ref, err)
	}
	if snap.Ref.Kind != ref.Kind {
		return resource.Snapshot{}, resource.ErrNotFound(ref, rev)
	}
	return snap, nil
}

// Latest is Get with rev 0.
func (l *Ledger) Latest(ctx context.Context, ref resource.Ref) (resource.Snapshot, error) {
	return l.Get(ctx, ref, 0)
}

// Head returns the current revision number of ref, 0 if it does not exist.
func (l *Ledger) Head(ctx context.Context, ref resource.Ref) (int64, error) {
	var rev sql.NullInt64
	err := l.db.QueryRowContext(ctx, `
		SELECT MAX(rev) FROM revisions WHERE resource_id = ?
	`, ref.Path).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("head %s: %w", ref, err)
	}
	return rev.Int64, nil
}

// History returns every revision of ref in ascending order. An unknown ref
// yields a ResourceNotFound error rather than an empty list.
func (l *Ledger) History(ctx context.Context, ref resource.Ref) ([]resource.Snapshot, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM revisions
		WHERE resource_id = ? AND kind = ?
		ORDER BY rev ASC
	`, ref.Path, string(ref.Kind))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, resource.ErrNotFound(ref, 0)
	}
	return snaps, nil
}

// Scan returns up to limit revisions committed after afterSeq, in commit
// order. Replaying Scan from 0 reproduces every mutation ever made.
func (l *Ledger) Scan(ctx context.Context, afterSeq int64, limit int) ([]resource.Snapshot, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM revisions
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("scan revisions: %w", err)
	}
	return scanSnapshots(rows)
}

// Count returns the number of committed revisions.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count revisions: %w", err)
	}
	return n, nil
}
