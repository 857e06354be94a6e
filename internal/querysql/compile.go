// Package querysql compiles search requests and query predicates to
// parameterized SQLite statements over the search projection tables.
//
// Values are never interpolated into SQL text, and every statement orders
// by resource id with COLLATE BINARY so results are deterministic.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/query"
	"github.com/roach88/nexus/internal/validate"
)

// Projection table names, created by the search indexer.
const (
	DocumentsTable = "search_documents"
	FieldsTable    = "search_fields"
)

// Search describes one search request.
type Search struct {
	Kind       string
	Prefix     string
	Term       string
	Filter     query.Predicate
	Deprecated *bool
	Limit      int
	Offset     int
}

// Statement is a compiled page query plus the matching count query. Both
// take Params.
type Statement struct {
	Select string
	Count  string
	Params []any
}

// Compile builds the statements for s.
func Compile(s Search) (Statement, error) {
	var (
		where  []string
		params []any
	)

	if s.Kind != "" {
		where = append(where, "d.kind = ?")
		params = append(params, s.Kind)
	}
	if s.Prefix != "" {
		where = append(where, `(d.resource_id = ? OR d.resource_id LIKE ? ESCAPE '\')`)
		params = append(params, s.Prefix, escapeLike(s.Prefix)+"/%")
	}
	if s.Term != "" {
		where = append(where, `d.text LIKE ? ESCAPE '\'`)
		params = append(params, "%"+escapeLike(strings.ToLower(s.Term))+"%")
	}
	if s.Deprecated != nil {
		where = append(where, "d.deprecated = ?")
		params = append(params, *s.Deprecated)
	}
	if s.Filter != nil {
		frag, fparams, err := CompilePredicate(s.Filter)
		if err != nil {
			return Statement{}, fmt.Errorf("compile filter: %w", err)
		}
		where = append(where, frag)
		params = append(params, fparams...)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	limit := s.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(s.Offset, 0)

	from := " FROM " + DocumentsTable + " d"
	return Statement{
		Select: "SELECT d.resource_id, d.kind, d.rev, d.deprecated, d.published, d.payload, d.attachment" +
			from + whereClause +
			" ORDER BY d.resource_id COLLATE BINARY ASC" +
			fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset),
		Count:  "SELECT COUNT(*)" + from + whereClause,
		Params: params,
	}, nil
}

// CompilePredicate compiles p to a WHERE fragment over documents aliased d.
func CompilePredicate(p query.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case query.Equals:
		return compileComparison(pred.Path, pred.Value, false)
	case query.NotEquals:
		return compileComparison(pred.Path, pred.Value, true)
	case query.And:
		return compileJunction(pred.Predicates, " AND ", "1 = 1")
	case query.Or:
		return compileJunction(pred.Predicates, " OR ", "1 = 0")
	case query.Not:
		frag, params, err := CompilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + frag + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileJunction(preds []query.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []any
	for _, p := range preds {
		frag, pp, err := CompilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+frag+")")
		params = append(params, pp...)
	}
	return strings.Join(parts, sep), params, nil
}

func compileComparison(path string, value doc.Value, negate bool) (string, []any, error) {
	if query.IsMeta(path) {
		return compileMeta(path, value, negate)
	}

	vtype, text, ok := FieldValue(value)
	if !ok {
		return "", nil, fmt.Errorf("path %q: value must be a scalar", path)
	}
	frag := "EXISTS (SELECT 1 FROM " + FieldsTable + " f" +
		" WHERE f.resource_id = d.resource_id AND f.field = ? AND f.vtype = ? AND f.value = ?)"
	if negate {
		frag = "NOT " + frag
	}
	return frag, []any{validate.LocalName(path), vtype, text}, nil
}

func compileMeta(path string, value doc.Value, negate bool) (string, []any, error) {
	op := "="
	if negate {
		op = "!="
	}
	switch path {
	case query.PathDeprecated, query.PathPublished:
		b, ok := value.(doc.Bool)
		if !ok {
			return "", nil, fmt.Errorf("path %q: value must be a boolean", path)
		}
		column := "d.deprecated"
		if path == query.PathPublished {
			column = "d.published"
		}
		return column + " " + op + " ?", []any{bool(b)}, nil
	case query.PathRev:
		n, ok := value.(doc.Number)
		if !ok {
			return "", nil, fmt.Errorf("path %q: value must be a number", path)
		}
		rev, ok := n.Int64()
		if !ok {
			return "", nil, fmt.Errorf("path %q: value must be an integer", path)
		}
		return "d.rev " + op + " ?", []any{rev}, nil
	default:
		return "", nil, fmt.Errorf("unknown metadata path %q", path)
	}
}

// FieldValue encodes a scalar for the fields table. Numbers use their
// canonical text so 1.50 and 1.5 match. Non-scalars report ok=false.
func FieldValue(v doc.Value) (vtype, text string, ok bool) {
	switch val := v.(type) {
	case doc.String:
		return "string", string(val), true
	case doc.Bool:
		if val {
			return "bool", "true", true
		}
		return "bool", "false", true
	case doc.Number:
		data, err := doc.MarshalCanonical(val)
		if err != nil {
			return "", "", false
		}
		return "number", string(data), true
	default:
		return "", "", false
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
