package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/resource"
)

// Append commits snap as the next revision of snap.Ref and returns it with
// Seq (and PayloadHash, if empty) filled in.
//
// The revision must be exactly one above the current maximum, and the
// deprecated and published flags may not go back to false. Violations return
// a LedgerSequenceGap or internal error; nothing is written.
func (l *Ledger) Append(ctx context.Context, snap resource.Snapshot) (resource.Snapshot, error) {
	if !snap.Event.Valid() {
		return resource.Snapshot{}, resource.ErrInternal("append", fmt.Errorf("unknown event %q", snap.Event))
	}

	payload, err := marshalPayload(snap.Payload)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("append: %w", err)
	}
	if snap.PayloadHash == "" {
		if snap.PayloadHash, err = doc.PayloadHash(snap.Payload); err != nil {
			return resource.Snapshot{}, fmt.Errorf("append: %w", err)
		}
	}
	attachment, err := marshalAttachment(snap.Attachment)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("append: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		maxRev     int64
		deprecated bool
		published  bool
	)
	err = tx.QueryRowContext(ctx, `
		SELECT rev, deprecated, published
		FROM revisions
		WHERE resource_id = ?
		ORDER BY rev DESC
		LIMIT 1
	`, snap.Ref.Path).Scan(&maxRev, &deprecated, &published)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return resource.Snapshot{}, fmt.Errorf("append: read head: %w", err)
	}

	if snap.Rev != maxRev+1 {
		return resource.Snapshot{}, resource.ErrSequenceGap(snap.Ref, snap.Rev, maxRev)
	}
	if (deprecated && !snap.Deprecated) || (published && !snap.Published) {
		return resource.Snapshot{}, resource.ErrInternal("append",
			fmt.Errorf("%s rev %d would clear a terminal flag", snap.Ref, snap.Rev))
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO revisions
		(resource_id, kind, rev, event, deprecated, published, payload, payload_hash, attachment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.Ref.Path,
		string(snap.Ref.Kind),
		snap.Rev,
		string(snap.Event),
		snap.Deprecated,
		snap.Published,
		payload,
		snap.PayloadHash,
		attachment,
		snap.CreatedAt.UnixNano(),
	)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("append: insert: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("append: seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return resource.Snapshot{}, fmt.Errorf("append: commit: %w", err)
	}

	snap.Seq = seq
	return snap, nil
}
