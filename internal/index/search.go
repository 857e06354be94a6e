package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/query"
	"github.com/roach88/nexus/internal/querysql"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Page size bounds.
const (
	DefaultSize = 20
	MaxSize     = 1000
)

// Query selects resources from the projection. Prefix restricts to a ref
// and its descendants; Deprecated, when set, filters on the flag.
type Query struct {
	Kind       resource.Kind
	Prefix     string
	Term       string
	Filter     query.Predicate
	Deprecated *bool
	From       int
	Size       int
}

// Result is one page of hits plus the total match count.
type Result struct {
	Total int64
	Hits  []resource.Snapshot
}

// Search runs q against the projection. Hits are ordered by resource id.
func (ix *Index) Search(ctx context.Context, q Query) (res Result, err error) {
	ctx, span := tracing.Start(ctx, "index.search")
	defer tracing.End(ctx, &err)

	size := q.Size
	switch {
	case size <= 0:
		size = DefaultSize
	case size > MaxSize:
		size = MaxSize
	}

	stmt, err := querysql.Compile(querysql.Search{
		Kind:       string(q.Kind),
		Prefix:     q.Prefix,
		Term:       q.Term,
		Filter:     q.Filter,
		Deprecated: q.Deprecated,
		Limit:      size,
		Offset:     q.From,
	})
	if err != nil {
		return Result{}, resource.ErrIllegalPayload(err.Error())
	}

	if err := ix.db.QueryRowContext(ctx, stmt.Count, stmt.Params...).Scan(&res.Total); err != nil {
		return Result{}, fmt.Errorf("count hits: %w", err)
	}

	rows, err := ix.db.QueryContext(ctx, stmt.Select, stmt.Params...)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	res.Hits = []resource.Snapshot{}
	for rows.Next() {
		snap, err := scanHit(rows)
		if err != nil {
			return Result{}, err
		}
		res.Hits = append(res.Hits, snap)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate hits: %w", err)
	}

	span.SetAttributes(attribute.Int64(tracing.AttrKeySearchTotal, res.Total))
	return res, nil
}

func scanHit(rows *sql.Rows) (resource.Snapshot, error) {
	var (
		snap       resource.Snapshot
		path, kind string
		payload    string
		attachment sql.NullString
	)
	if err := rows.Scan(&path, &kind, &snap.Rev, &snap.Deprecated, &snap.Published, &payload, &attachment); err != nil {
		return resource.Snapshot{}, fmt.Errorf("scan hit: %w", err)
	}

	ref, err := resource.ParseRef(path)
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("indexed ref %q: %w", path, err)
	}
	if string(ref.Kind) != kind {
		return resource.Snapshot{}, fmt.Errorf("indexed ref %q has kind %q", path, kind)
	}
	snap.Ref = ref

	snap.Payload, err = doc.ParseObject([]byte(payload))
	if err != nil {
		return resource.Snapshot{}, fmt.Errorf("indexed payload %q: %w", path, err)
	}
	if attachment.Valid {
		snap.Attachment = &resource.Attachment{}
		if err := json.Unmarshal([]byte(attachment.String), snap.Attachment); err != nil {
			return resource.Snapshot{}, fmt.Errorf("indexed attachment %q: %w", path, err)
		}
	}
	return snap, nil
}
