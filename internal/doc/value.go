package doc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the JSON value types a payload may hold.
type Value interface {
	docValue()
}

// Null is the JSON null value.
type Null struct{}

func (Null) docValue() {}

// String is a JSON string.
type String string

func (String) docValue() {}

// Number is a JSON number kept in its decimal text form.
type Number json.Number

func (Number) docValue() {}

// Int64 reports the number as an integer when it has no fractional part.
func (n Number) Int64() (int64, bool) {
	i, err := json.Number(n).Int64()
	return i, err == nil
}

// Float64 reports the number as a float.
func (n Number) Float64() (float64, error) {
	return json.Number(n).Float64()
}

// Bool is a JSON boolean.
type Bool bool

func (Bool) docValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) docValue() {}

// Object maps keys to values. Iterate with SortedKeys for deterministic order.
type Object map[string]Value

func (Object) docValue() {}

// Int returns a Number for an integer.
func Int(n int64) Number {
	return Number(fmt.Sprintf("%d", n))
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string order is UTF-8 byte order, which differs for
// supplementary-plane characters.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Clone returns a shallow copy of the object. Nested values are shared,
// which is safe because payload values are never mutated in place.
func (o Object) Clone() Object {
	out := make(Object, len(o)+2)
	for k, v := range o {
		out[k] = v
	}
	return out
}

// StringField returns the string stored at key, if any.
func (o Object) StringField(key string) (string, bool) {
	s, ok := o[key].(String)
	return string(s), ok
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// ErrNotObject is returned by ParseObject when the document root is not a JSON object.
var ErrNotObject = errors.New("document root must be a JSON object")

// Parse decodes a single JSON document. Trailing content is rejected.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("parse document: trailing data after JSON value")
	}
	return FromAny(raw)
}

// ParseObject decodes a JSON document whose root must be an object.
func ParseObject(data []byte) (Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// FromAny converts the output of encoding/json (decoded with UseNumber) or
// plain Go literals into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return Number(val), nil
	case int:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case float64:
		return Number(formatFloat(val)), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			dv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = dv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			dv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = dv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToAny converts a Value back to plain Go values (maps, slices, json.Number).
// Used when handing a payload to encoders that do not know this package.
func ToAny(v Value) any {
	switch val := v.(type) {
	case Null, nil:
		return nil
	case String:
		return string(val)
	case Number:
		return json.Number(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON renders the object in canonical form.
func (o Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}

// MarshalJSON renders the array in canonical form.
func (a Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(a)
}

// UnmarshalJSON decodes a JSON object into o.
func (o *Object) UnmarshalJSON(data []byte) error {
	obj, err := ParseObject(data)
	if err != nil {
		return err
	}
	*o = obj
	return nil
}
