package validate

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/nexus/internal/doc"
)

// maxCachedRulesets bounds the compiled ruleset cache. When full, the cache
// is reset; rulesets are cheap to recompile.
const maxCachedRulesets = 256

// Ruleset is a compiled schema.
type Ruleset struct {
	Hash       string
	Properties []Property
	Source     string

	fields map[string]cue.Value
	owner  *Validator
}

// ValidationError lists every constraint an instance payload violates.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d constraint violation(s): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// Validator compiles and caches rulesets. It is safe for concurrent use;
// CUE evaluation itself is serialized since a cue.Context is not.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	cache  map[string]*Ruleset
	logger *slog.Logger
}

// New creates a validator with an empty cache.
func New(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		ctx:    cuecontext.New(),
		cache:  make(map[string]*Ruleset),
		logger: logger,
	}
}

// Compile returns the ruleset for a schema payload, from cache when the same
// payload was compiled before. Malformed shapes return a *SchemaError.
func (v *Validator) Compile(schema doc.Object) (*Ruleset, error) {
	hash, err := doc.RulesetHash(schema)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if rs, ok := v.cache[hash]; ok {
		return rs, nil
	}

	props, err := parseShapes(schema)
	if err != nil {
		return nil, err
	}
	src, err := cueSource(props)
	if err != nil {
		return nil, err
	}
	if err := v.ctx.CompileString(src, cue.Filename("ruleset.cue")).Err(); err != nil {
		return nil, &SchemaError{Field: "shapes", Message: errors.Details(err, nil)}
	}
	fields := make(map[string]cue.Value, len(props))
	for _, p := range props {
		elem, err := elementConstraint(p)
		if err != nil {
			return nil, err
		}
		value := v.ctx.CompileString(elem, cue.Filename(p.Name+".cue"))
		if err := value.Err(); err != nil {
			return nil, &SchemaError{Field: p.Name, Message: errors.Details(err, nil)}
		}
		fields[p.Name] = value
	}

	rs := &Ruleset{Hash: hash, Properties: props, Source: src, fields: fields, owner: v}
	if len(v.cache) >= maxCachedRulesets {
		v.logger.Debug("ruleset cache reset", "entries", len(v.cache))
		v.cache = make(map[string]*Ruleset)
	}
	v.cache[hash] = rs
	return rs, nil
}

// CheckSchema reports whether a schema payload compiles.
func (v *Validator) CheckSchema(schema doc.Object) error {
	_, err := v.Compile(schema)
	return err
}

// Validate compiles schema (or reuses its cached ruleset) and checks payload.
func (v *Validator) Validate(schema, payload doc.Object) error {
	rs, err := v.Compile(schema)
	if err != nil {
		return err
	}
	return rs.Validate(payload)
}

// CachedRulesets reports the number of cached rulesets.
func (v *Validator) CachedRulesets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cache)
}

// Validate checks payload against the ruleset. It has no side effects and
// returns nil or a *ValidationError holding at most one violation per
// property.
func (rs *Ruleset) Validate(payload doc.Object) error {
	normalized := Normalize(payload)

	var violations []string
	for _, p := range rs.Properties {
		if msg := rs.checkProperty(p, normalized[p.Name]); msg != "" {
			violations = append(violations, p.Name+": "+msg)
		}
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// checkProperty returns the first problem with a field's value, or "".
// Cardinality is checked before the element constraint.
func (rs *Ruleset) checkProperty(p Property, v doc.Value) string {
	n := cardinality(v)
	if n < p.MinCount {
		return fmt.Sprintf("expected at least %d value(s), found %d", p.MinCount, n)
	}
	if p.MaxCount > 0 && n > p.MaxCount {
		return fmt.Sprintf("expected at most %d value(s), found %d", p.MaxCount, n)
	}
	if n == 0 {
		return ""
	}

	elems := []doc.Value{v}
	arr, isArray := v.(doc.Array)
	if isArray {
		elems = arr
	}
	for i, elem := range elems {
		msg := rs.checkElement(p.Name, elem)
		if msg == "" {
			continue
		}
		if isArray {
			return fmt.Sprintf("value %d: %s", i, msg)
		}
		return msg
	}
	return ""
}

func (rs *Ruleset) checkElement(name string, elem doc.Value) string {
	data, err := doc.MarshalCanonical(elem)
	if err != nil {
		return err.Error()
	}

	rs.owner.mu.Lock()
	defer rs.owner.mu.Unlock()
	instance := rs.owner.ctx.CompileBytes(data, cue.Filename(name+".json"))
	if err := instance.Err(); err != nil {
		return err.Error()
	}
	if err := rs.fields[name].Unify(instance).Validate(cue.Concrete(true)); err != nil {
		return describe(err, data)
	}
	return ""
}

// Normalize rekeys a payload by local name. Keys are visited in canonical
// order, so when two keys share a local name the later one wins.
func Normalize(payload doc.Object) doc.Object {
	out := make(doc.Object, len(payload))
	for _, k := range payload.SortedKeys() {
		out[LocalName(k)] = payload[k]
	}
	return out
}

func cardinality(v doc.Value) int {
	switch val := v.(type) {
	case nil, doc.Null:
		return 0
	case doc.Array:
		return len(val)
	default:
		return 1
	}
}

// describe condenses a CUE error into one message. Disjunctions report an
// error per failed branch, so those collapse into a single summary.
func describe(err error, value []byte) string {
	errs := errors.Errors(err)
	if len(errs) == 1 {
		format, args := errs[0].Msg()
		return fmt.Sprintf(format, args...)
	}
	return fmt.Sprintf("value %s matches none of the allowed alternatives", value)
}
