package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/nexus/internal/doc"
)

// Property is one compiled property constraint.
type Property struct {
	Name      string
	Path      string
	Datatypes []string
	Pattern   string
	MinCount  int
	MaxCount  int
	In        []doc.Value
}

// SchemaError reports a schema payload that cannot be compiled.
type SchemaError struct {
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// cueTypes maps supported XSD datatypes to CUE kinds.
var cueTypes = map[string]string{
	"string":             "string",
	"anyURI":             "string",
	"date":               "string",
	"dateTime":           "string",
	"time":               "string",
	"integer":            "int",
	"int":                "int",
	"long":               "int",
	"short":              "int",
	"nonNegativeInteger": "int & >=0",
	"positiveInteger":    "int & >0",
	"float":              "number",
	"double":             "number",
	"decimal":            "number",
	"boolean":            "bool",
}

// LocalName strips a prefix or namespace IRI from a property path.
func LocalName(path string) string {
	if i := strings.LastIndexAny(path, ":/#"); i >= 0 && i < len(path)-1 {
		return path[i+1:]
	}
	return path
}

// parseShapes extracts property constraints from a schema payload.
// A payload without "shapes" has no constraints.
func parseShapes(schema doc.Object) ([]Property, error) {
	raw, ok := schema["shapes"]
	if !ok {
		return []Property{}, nil
	}

	var shapes []doc.Object
	switch v := raw.(type) {
	case doc.Object:
		shapes = []doc.Object{v}
	case doc.Array:
		for i, elem := range v {
			obj, ok := elem.(doc.Object)
			if !ok {
				return nil, &SchemaError{Field: fmt.Sprintf("shapes[%d]", i), Message: "shape must be an object"}
			}
			shapes = append(shapes, obj)
		}
	default:
		return nil, &SchemaError{Field: "shapes", Message: "must be an object or a list of objects"}
	}

	byName := map[string]Property{}
	for i, shape := range shapes {
		field := fmt.Sprintf("shapes[%d].property", i)
		props, err := asObjects(shape["property"], field)
		if err != nil {
			return nil, err
		}
		for j, p := range props {
			prop, err := parseProperty(p, fmt.Sprintf("%s[%d]", field, j))
			if err != nil {
				return nil, err
			}
			if prev, ok := byName[prop.Name]; ok {
				prop = mergeProperty(prev, prop)
			}
			byName[prop.Name] = prop
		}
	}

	out := make([]Property, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func asObjects(v doc.Value, field string) ([]doc.Object, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case doc.Object:
		return []doc.Object{val}, nil
	case doc.Array:
		out := make([]doc.Object, 0, len(val))
		for i, elem := range val {
			obj, ok := elem.(doc.Object)
			if !ok {
				return nil, &SchemaError{Field: fmt.Sprintf("%s[%d]", field, i), Message: "must be an object"}
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, &SchemaError{Field: field, Message: "must be an object or a list of objects"}
	}
}

func parseProperty(p doc.Object, field string) (Property, error) {
	path, err := pathOf(p["path"])
	if err != nil {
		return Property{}, &SchemaError{Field: field + ".path", Message: err.Error()}
	}
	prop := Property{Name: LocalName(path), Path: path}

	if dt, ok := p.StringField("datatype"); ok {
		prop.Datatypes = append(prop.Datatypes, dt)
	}
	alts, err := asObjects(p["or"], field+".or")
	if err != nil {
		return Property{}, err
	}
	for i, alt := range alts {
		dt, ok := alt.StringField("datatype")
		if !ok {
			return Property{}, &SchemaError{Field: fmt.Sprintf("%s.or[%d]", field, i), Message: "alternative needs a datatype"}
		}
		prop.Datatypes = append(prop.Datatypes, dt)
	}

	if pat, ok := p["pattern"]; ok {
		s, ok := pat.(doc.String)
		if !ok {
			return Property{}, &SchemaError{Field: field + ".pattern", Message: "must be a string"}
		}
		if _, err := regexp.Compile(string(s)); err != nil {
			return Property{}, &SchemaError{Field: field + ".pattern", Message: err.Error()}
		}
		prop.Pattern = string(s)
	}

	if prop.MinCount, err = countOf(p["minCount"]); err != nil {
		return Property{}, &SchemaError{Field: field + ".minCount", Message: err.Error()}
	}
	if prop.MaxCount, err = countOf(p["maxCount"]); err != nil {
		return Property{}, &SchemaError{Field: field + ".maxCount", Message: err.Error()}
	}
	if prop.MaxCount > 0 && prop.MinCount > prop.MaxCount {
		return Property{}, &SchemaError{Field: field, Message: "minCount exceeds maxCount"}
	}

	if in, ok := p["in"]; ok {
		arr, ok := in.(doc.Array)
		if !ok || len(arr) == 0 {
			return Property{}, &SchemaError{Field: field + ".in", Message: "must be a non-empty list"}
		}
		for i, v := range arr {
			switch v.(type) {
			case doc.String, doc.Number, doc.Bool:
			default:
				return Property{}, &SchemaError{Field: fmt.Sprintf("%s.in[%d]", field, i), Message: "must be a scalar"}
			}
		}
		prop.In = arr
	}

	return prop, nil
}

// pathOf accepts "schema:x" or {"@id": "schema:x"}.
func pathOf(v doc.Value) (string, error) {
	switch val := v.(type) {
	case doc.String:
		if val == "" {
			return "", fmt.Errorf("must not be empty")
		}
		return string(val), nil
	case doc.Object:
		if id, ok := val.StringField("@id"); ok && id != "" {
			return id, nil
		}
	case nil:
		return "", fmt.Errorf("is required")
	}
	return "", fmt.Errorf("must be a string")
}

// countOf accepts 1 or "1"; absent means 0.
func countOf(v doc.Value) (int, error) {
	var (
		n   int64
		err error
	)
	switch val := v.(type) {
	case nil:
		return 0, nil
	case doc.Number:
		var ok bool
		if n, ok = val.Int64(); !ok {
			return 0, fmt.Errorf("must be an integer")
		}
	case doc.String:
		if n, err = strconv.ParseInt(string(val), 10, 32); err != nil {
			return 0, fmt.Errorf("must be an integer")
		}
	default:
		return 0, fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return int(n), nil
}

// mergeProperty combines two shapes constraining the same field: both must hold.
func mergeProperty(a, b Property) Property {
	out := a
	out.MinCount = max(a.MinCount, b.MinCount)
	switch {
	case a.MaxCount == 0:
		out.MaxCount = b.MaxCount
	case b.MaxCount > 0:
		out.MaxCount = min(a.MaxCount, b.MaxCount)
	}
	if len(b.Datatypes) > 0 {
		out.Datatypes = b.Datatypes
	}
	if b.Pattern != "" {
		out.Pattern = b.Pattern
	}
	if len(b.In) > 0 {
		out.In = b.In
	}
	return out
}

// cueSource renders the value constraints as a CUE struct. Every field is
// optional here; cardinality is enforced in checkCounts.
func cueSource(props []Property) (string, error) {
	var b strings.Builder
	b.WriteString("{\n")
	for _, p := range props {
		elem, err := elementConstraint(p)
		if err != nil {
			return "", err
		}
		label, _ := json.Marshal(p.Name)
		if p.MaxCount == 1 {
			fmt.Fprintf(&b, "\t%s?: %s\n", label, elem)
		} else {
			fmt.Fprintf(&b, "\t%s?: (%s) | [...(%s)]\n", label, elem, elem)
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}

func elementConstraint(p Property) (string, error) {
	var parts []string

	if len(p.Datatypes) > 0 {
		var alts []string
		for _, dt := range p.Datatypes {
			alts = append(alts, datatypeConstraint(dt))
		}
		parts = append(parts, "("+strings.Join(dedupe(alts), " | ")+")")
	}
	if p.Pattern != "" {
		lit, _ := json.Marshal(p.Pattern)
		parts = append(parts, "=~"+string(lit))
	}
	if len(p.In) > 0 {
		var alts []string
		for _, v := range p.In {
			lit, err := doc.MarshalCanonical(v)
			if err != nil {
				return "", err
			}
			alts = append(alts, string(lit))
		}
		parts = append(parts, "("+strings.Join(alts, " | ")+")")
	}

	if len(parts) == 0 {
		return "_", nil
	}
	return strings.Join(parts, " & "), nil
}

// datatypeConstraint maps an XSD datatype to CUE. IRIs that are not
// XSD datatypes constrain nothing.
func datatypeConstraint(dt string) string {
	if t, ok := cueTypes[LocalName(dt)]; ok {
		return t
	}
	return "_"
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
