package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/querysql"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/tracing"
	"github.com/roach88/nexus/internal/validate"
)

type field struct {
	name, vtype, value string
}

// apply upserts snap into the projection unless a newer revision of the
// same ref is already there.
func (ix *Index) apply(ctx context.Context, snap resource.Snapshot) (err error) {
	ctx, span := tracing.Start(ctx, "index.apply")
	span.SetAttributes(tracing.RefAttributes(snap.Ref)...)
	defer tracing.End(ctx, &err)

	payload, err := doc.MarshalCanonical(snap.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var attachment sql.NullString
	if snap.Attachment != nil {
		data, err := json.Marshal(snap.Attachment)
		if err != nil {
			return fmt.Errorf("marshal attachment: %w", err)
		}
		attachment = sql.NullString{String: string(data), Valid: true}
	}
	fields, text := project(snap)

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT rev FROM search_documents WHERE resource_id = ?`, snap.Ref.Path).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("read indexed rev: %w", err)
	case current >= snap.Rev:
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO search_documents (resource_id, kind, rev, deprecated, published, payload, attachment, text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET
			kind = excluded.kind,
			rev = excluded.rev,
			deprecated = excluded.deprecated,
			published = excluded.published,
			payload = excluded.payload,
			attachment = excluded.attachment,
			text = excluded.text
	`, snap.Ref.Path, string(snap.Ref.Kind), snap.Rev, snap.Deprecated, snap.Published,
		string(payload), attachment, text); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM search_fields WHERE resource_id = ?`, snap.Ref.Path); err != nil {
		return fmt.Errorf("clear fields: %w", err)
	}
	for _, f := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO search_fields (resource_id, field, vtype, value) VALUES (?, ?, ?, ?)`,
			snap.Ref.Path, f.name, f.vtype, f.value); err != nil {
			return fmt.Errorf("insert field %s: %w", f.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}

// project flattens the payload's top-level entries into field rows and
// builds the lowercase text used for term matching. Nested objects
// contribute their "@id" when they have one.
func project(snap resource.Snapshot) ([]field, string) {
	var (
		fields []field
		text   = []string{strings.ToLower(snap.Ref.Path)}
	)
	add := func(name string, v doc.Value) {
		if obj, ok := v.(doc.Object); ok {
			id, ok := obj.StringField("@id")
			if !ok {
				return
			}
			v = doc.String(id)
		}
		vtype, value, ok := querysql.FieldValue(v)
		if !ok {
			return
		}
		fields = append(fields, field{name: name, vtype: vtype, value: value})
		text = append(text, strings.ToLower(value))
	}

	for _, key := range snap.Payload.SortedKeys() {
		name := validate.LocalName(key)
		switch v := snap.Payload[key].(type) {
		case doc.Array:
			for _, elem := range v {
				add(name, elem)
			}
		default:
			add(name, v)
		}
	}
	return fields, strings.Join(text, "\n")
}
