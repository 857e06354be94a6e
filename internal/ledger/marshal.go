package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/resource"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const snapshotColumns = `seq, resource_id, kind, rev, event, deprecated, published, payload, payload_hash, attachment, created_at`

func marshalPayload(payload doc.Object) (string, error) {
	if payload == nil {
		payload = doc.Object{}
	}
	data, err := doc.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

func marshalAttachment(a *resource.Attachment) (sql.NullString, error) {
	if a == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal attachment: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanSnapshot(row rowScanner) (resource.Snapshot, error) {
	var (
		snap       resource.Snapshot
		resourceID string
		kind       string
		event      string
		payload    string
		attachment sql.NullString
		createdAt  int64
	)
	if err := row.Scan(
		&snap.Seq,
		&resourceID,
		&kind,
		&snap.Rev,
		&event,
		&snap.Deprecated,
		&snap.Published,
		&payload,
		&snap.PayloadHash,
		&attachment,
		&createdAt,
	); err != nil {
		return resource.Snapshot{}, err
	}

	snap.Ref = resource.Ref{Kind: resource.Kind(kind), Path: resourceID}
	snap.Event = resource.Event(event)
	snap.CreatedAt = time.Unix(0, createdAt).UTC()

	obj, err := doc.ParseObject([]byte(payload))
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("scan %s rev %d: %w", resourceID, snap.Rev, err)
	}
	snap.Payload = obj

	if attachment.Valid {
		var a resource.Attachment
		if err := json.Unmarshal([]byte(attachment.String), &a); err != nil {
			return resource.Snapshot{}, fmt.Errorf("scan %s rev %d attachment: %w", resourceID, snap.Rev, err)
		}
		snap.Attachment = &a
	}

	return snap, nil
}

func scanSnapshots(rows *sql.Rows) ([]resource.Snapshot, error) {
	defer rows.Close()

	snaps := []resource.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return snaps, nil
}
