package query

import (
	"fmt"

	"github.com/roach88/nexus/internal/doc"
)

// MaxDepth bounds filter nesting.
const MaxDepth = 16

// ParseError reports a malformed filter.
type ParseError struct {
	Path    string
	Message string
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "filter: " + e.Message
	}
	return fmt.Sprintf("filter %s: %s", e.Path, e.Message)
}

// Parse decodes a JSON filter.
func Parse(data []byte) (Predicate, error) {
	v, err := doc.Parse(data)
	if err != nil {
		return nil, &ParseError{Message: err.Error()}
	}
	return FromValue(v)
}

// FromValue converts a decoded filter document.
func FromValue(v doc.Value) (Predicate, error) {
	return fromValue(v, "$", 0)
}

func fromValue(v doc.Value, at string, depth int) (Predicate, error) {
	if depth > MaxDepth {
		return nil, &ParseError{Path: at, Message: fmt.Sprintf("nested deeper than %d", MaxDepth)}
	}
	obj, ok := v.(doc.Object)
	if !ok {
		return nil, &ParseError{Path: at, Message: "must be an object"}
	}
	op, ok := obj.StringField("op")
	if !ok {
		return nil, &ParseError{Path: at, Message: `missing "op"`}
	}

	switch op {
	case "eq", "ne":
		path, ok := obj.StringField("path")
		if !ok || path == "" {
			return nil, &ParseError{Path: at, Message: `comparison needs a "path"`}
		}
		value, ok := obj["value"]
		if !ok {
			return nil, &ParseError{Path: at, Message: `comparison needs a "value"`}
		}
		switch value.(type) {
		case doc.String, doc.Number, doc.Bool:
		default:
			return nil, &ParseError{Path: at, Message: "comparison value must be a string, number or boolean"}
		}
		if op == "eq" {
			return Equals{Path: path, Value: value}, nil
		}
		return NotEquals{Path: path, Value: value}, nil

	case "and", "or":
		arr, ok := obj["value"].(doc.Array)
		if !ok {
			return nil, &ParseError{Path: at, Message: fmt.Sprintf("%q needs a list of filters as value", op)}
		}
		preds := make([]Predicate, 0, len(arr))
		for i, elem := range arr {
			p, err := fromValue(elem, fmt.Sprintf("%s.value[%d]", at, i), depth+1)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		if op == "and" {
			return And{Predicates: preds}, nil
		}
		return Or{Predicates: preds}, nil

	case "not":
		inner, ok := obj["value"]
		if !ok {
			return nil, &ParseError{Path: at, Message: `"not" needs a filter as value`}
		}
		p, err := fromValue(inner, at+".value", depth+1)
		if err != nil {
			return nil, err
		}
		return Not{Predicate: p}, nil

	default:
		return nil, &ParseError{Path: at, Message: fmt.Sprintf("unknown op %q", op)}
	}
}
