// Package resource defines the addressable resources nexus manages, the
// immutable revision snapshots recorded for them, and the coded error
// taxonomy shared by every layer above the ledger.
package resource

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind names a resource type. The hierarchy is
// organization > domain > schema > instance.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindDomain       Kind = "domain"
	KindSchema       Kind = "schema"
	KindInstance     Kind = "instance"
)

// Depth is the number of path segments addressing a resource of this kind.
func (k Kind) Depth() int {
	switch k {
	case KindOrganization:
		return 1
	case KindDomain:
		return 2
	case KindSchema:
		return 4
	case KindInstance:
		return 5
	default:
		return 0
	}
}

// Collection is the URL collection under which the kind is served.
func (k Kind) Collection() string {
	switch k {
	case KindOrganization:
		return "organizations"
	case KindDomain:
		return "domains"
	case KindSchema:
		return "schemas"
	case KindInstance:
		return "data"
	default:
		return ""
	}
}

// Title is the capitalized kind name used in error codes.
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// KindForDepth maps a segment count back to a kind.
func KindForDepth(n int) (Kind, bool) {
	for _, k := range []Kind{KindOrganization, KindDomain, KindSchema, KindInstance} {
		if k.Depth() == n {
			return k, true
		}
	}
	return "", false
}

var (
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
	versionPattern = regexp.MustCompile(`^v[0-9]+\.[0-9]+\.[0-9]+$`)
)

// Ref addresses a resource. Path is the slash-joined segment list, e.g.
// "bbp/core/person/v1.0.0" for a schema.
type Ref struct {
	Kind Kind
	Path string
}

// NewRef validates segments and builds a ref of the kind implied by their count.
func NewRef(segments ...string) (Ref, error) {
	kind, ok := KindForDepth(len(segments))
	if !ok {
		return Ref{}, ErrIllegalRef(strings.Join(segments, "/"), "unexpected number of path segments")
	}
	for i, s := range segments {
		if s == "." || s == ".." || !segmentPattern.MatchString(s) {
			return Ref{}, ErrIllegalRef(strings.Join(segments, "/"), fmt.Sprintf("illegal segment %q", s))
		}
		if i == 3 && !versionPattern.MatchString(s) {
			return Ref{}, ErrIllegalRef(strings.Join(segments, "/"), fmt.Sprintf("schema version %q must look like v1.0.0", s))
		}
	}
	return Ref{Kind: kind, Path: strings.Join(segments, "/")}, nil
}

// ParseRef parses a slash-joined path.
func ParseRef(path string) (Ref, error) {
	return NewRef(strings.Split(strings.Trim(path, "/"), "/")...)
}

// MustRef is NewRef for literals in tests and fixtures.
func MustRef(segments ...string) Ref {
	r, err := NewRef(segments...)
	if err != nil {
		panic(err)
	}
	return r
}

// Segments splits the path.
func (r Ref) Segments() []string {
	if r.Path == "" {
		return nil
	}
	return strings.Split(r.Path, "/")
}

// Name is the last path segment.
func (r Ref) Name() string {
	segs := r.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the owning resource. Organizations have none.
func (r Ref) Parent() (Ref, bool) {
	var kind Kind
	switch r.Kind {
	case KindDomain:
		kind = KindOrganization
	case KindSchema:
		kind = KindDomain
	case KindInstance:
		kind = KindSchema
	default:
		return Ref{}, false
	}
	segs := r.Segments()
	return Ref{Kind: kind, Path: strings.Join(segs[:kind.Depth()], "/")}, true
}

// Child builds a ref one level down from r.
func (r Ref) Child(segments ...string) (Ref, error) {
	return NewRef(append(r.Segments(), segments...)...)
}

// IsZero reports whether r is the zero ref.
func (r Ref) IsZero() bool {
	return r.Path == ""
}

// URLPath is the API path of the resource, e.g. "/v0/schemas/bbp/core/person/v1.0.0".
func (r Ref) URLPath() string {
	return "/v0/" + r.Kind.Collection() + "/" + r.Path
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.Path
}
