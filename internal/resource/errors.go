package resource

import (
	"errors"
	"strconv"
	"strings"

	"github.com/serum-errors/go-serum"
)

// Error codes. These are the stable identifiers clients see in the "code"
// field of an error response.
const (
	CodeNotFound                  = "ResourceNotFound"
	CodeAttachmentNotFound        = "AttachmentNotFound"
	CodeAlreadyExists             = "ResourceAlreadyExists"
	CodeIncorrectRevision         = "IncorrectRevisionProvided"
	CodeShapeConstraintViolations = "ShapeConstraintViolations"
	CodeIllegalSchema             = "IllegalSchema"
	CodeIllegalPayload            = "IllegalPayload"
	CodeIllegalRef                = "IllegalRef"
	CodeMissingRevision           = "MissingRevision"
	CodeSchemaNotPublished        = "SchemaIsNotPublished"
	CodeSchemaPublished           = "SchemaIsPublished"
	CodeAttachmentTooLarge        = "AttachmentTooLarge"
	CodeAttachmentCorrupted       = "AttachmentCorrupted"
	CodeLedgerSequenceGap         = "LedgerSequenceGap"
	CodeInternal                  = "InternalError"
)

// MessageAttachmentNotFound is the fixed text reported when no attachment is
// present at the requested revision.
const MessageAttachmentNotFound = "The requested resource could not be found but may be available again in the future."

// MessageMissingRevision is reported when a write omits its revision token.
const MessageMissingRevision = "Request is missing required query parameter 'rev'"

// CodeDeprecated is the code for writes against a deprecated resource of
// the given kind, e.g. "InstanceIsDeprecated".
func CodeDeprecated(k Kind) string {
	return k.Title() + "IsDeprecated"
}

// CodeAlreadyDeprecated is the code for deprecating a resource twice.
func CodeAlreadyDeprecated(k Kind) string {
	return k.Title() + "AlreadyDeprecated"
}

// Category groups error codes by how callers should react.
type Category int

const (
	CategoryInternal Category = iota
	CategoryNotFound
	CategoryAlreadyExists
	CategoryRevisionConflict
	CategoryDeprecated
	CategoryAlreadyDeprecated
	CategoryInvalidPayload
)

func (c Category) String() string {
	switch c {
	case CategoryNotFound:
		return "not_found"
	case CategoryAlreadyExists:
		return "already_exists"
	case CategoryRevisionConflict:
		return "revision_conflict"
	case CategoryDeprecated:
		return "deprecated"
	case CategoryAlreadyDeprecated:
		return "already_deprecated"
	case CategoryInvalidPayload:
		return "invalid_payload"
	default:
		return "internal"
	}
}

// Code extracts the serum code from err or anything it wraps.
// Errors without a code report CodeInternal.
func Code(err error) string {
	var coded serum.ErrorInterface
	if errors.As(err, &coded) {
		if c := coded.Code(); c != "" {
			return c
		}
	}
	return CodeInternal
}

// Message returns the human readable message of a coded error, falling back
// to err.Error().
func Message(err error) string {
	var coded serum.ErrorInterfaceWithMessage
	if errors.As(err, &coded) {
		if m := coded.Message(); m != "" {
			return m
		}
	}
	return err.Error()
}

// CategoryOf classifies err.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryInternal
	}
	code := Code(err)
	switch code {
	case CodeNotFound, CodeAttachmentNotFound:
		return CategoryNotFound
	case CodeAlreadyExists:
		return CategoryAlreadyExists
	case CodeIncorrectRevision:
		return CategoryRevisionConflict
	case CodeShapeConstraintViolations, CodeIllegalSchema, CodeIllegalPayload, CodeIllegalRef,
		CodeMissingRevision, CodeSchemaNotPublished, CodeSchemaPublished, CodeAttachmentTooLarge:
		return CategoryInvalidPayload
	}
	for _, k := range []Kind{KindOrganization, KindDomain, KindSchema, KindInstance} {
		switch code {
		case CodeDeprecated(k):
			return CategoryDeprecated
		case CodeAlreadyDeprecated(k):
			return CategoryAlreadyDeprecated
		}
	}
	return CategoryInternal
}

// IsNotFound reports whether err is a not-found error of any kind.
func IsNotFound(err error) bool { return err != nil && CategoryOf(err) == CategoryNotFound }

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool { return err != nil && CategoryOf(err) == CategoryRevisionConflict }

// IsDeprecated reports whether err rejected a write against a deprecated resource.
func IsDeprecated(err error) bool { return err != nil && CategoryOf(err) == CategoryDeprecated }

// ErrNotFound reports a missing resource, or a missing revision when rev > 0.
func ErrNotFound(ref Ref, rev int64) error {
	if rev > 0 {
		return serum.Error(CodeNotFound,
			serum.WithMessageTemplate("{{kind}} '{{ref}}' has no revision {{rev}}"),
			serum.WithDetail("kind", string(ref.Kind)),
			serum.WithDetail("ref", ref.Path),
			serum.WithDetail("rev", strconv.FormatInt(rev, 10)),
		)
	}
	return serum.Error(CodeNotFound,
		serum.WithMessageTemplate("{{kind}} '{{ref}}' not found"),
		serum.WithDetail("kind", string(ref.Kind)),
		serum.WithDetail("ref", ref.Path),
	)
}

// ErrAttachmentNotFound reports that the instance carries no attachment at
// the requested revision.
func ErrAttachmentNotFound(ref Ref, rev int64) error {
	return serum.Error(CodeAttachmentNotFound,
		serum.WithMessageLiteral(MessageAttachmentNotFound),
		serum.WithDetail("ref", ref.Path),
		serum.WithDetail("rev", strconv.FormatInt(rev, 10)),
	)
}

// ErrAlreadyExists reports a create against an existing ref.
func ErrAlreadyExists(ref Ref) error {
	return serum.Error(CodeAlreadyExists,
		serum.WithMessageTemplate("{{kind}} '{{ref}}' already exists"),
		serum.WithDetail("kind", string(ref.Kind)),
		serum.WithDetail("ref", ref.Path),
	)
}

// ErrIncorrectRevision reports a stale or future revision token.
func ErrIncorrectRevision(ref Ref, expected, current int64) error {
	return serum.Error(CodeIncorrectRevision,
		serum.WithMessageTemplate("incorrect revision '{{expected}}' provided, expected '{{current}}'"),
		serum.WithDetail("ref", ref.Path),
		serum.WithDetail("expected", strconv.FormatInt(expected, 10)),
		serum.WithDetail("current", strconv.FormatInt(current, 10)),
	)
}

// ErrDeprecated reports a write against (or beneath) a deprecated resource.
func ErrDeprecated(ref Ref) error {
	return serum.Error(CodeDeprecated(ref.Kind),
		serum.WithMessageTemplate("{{kind}} '{{ref}}' is deprecated"),
		serum.WithDetail("kind", string(ref.Kind)),
		serum.WithDetail("ref", ref.Path),
	)
}

// ErrAlreadyDeprecated reports a second deprecation.
func ErrAlreadyDeprecated(ref Ref) error {
	return serum.Error(CodeAlreadyDeprecated(ref.Kind),
		serum.WithMessageTemplate("{{kind}} '{{ref}}' is already deprecated"),
		serum.WithDetail("kind", string(ref.Kind)),
		serum.WithDetail("ref", ref.Path),
	)
}

// ErrShapeViolations reports instance payloads that fail schema validation.
// The message lists the violations; each is also a "violation" detail.
func ErrShapeViolations(ref Ref, violations []string) error {
	opts := []serum.WithConstruction{
		serum.WithMessageTemplate("payload of '{{ref}}' violates {{count}} schema constraint(s): {{violations}}"),
		serum.WithDetail("ref", ref.Path),
		serum.WithDetail("count", strconv.Itoa(len(violations))),
		serum.WithDetail("violations", strings.Join(violations, "; ")),
	}
	for _, v := range violations {
		opts = append(opts, serum.WithDetail("violation", v))
	}
	return serum.Error(CodeShapeConstraintViolations, opts...)
}

// ErrIllegalSchema reports a schema payload that does not compile to a ruleset.
func ErrIllegalSchema(ref Ref, cause error) error {
	return serum.Error(CodeIllegalSchema,
		serum.WithMessageTemplate("schema '{{ref}}' is not a valid ruleset: {{reason}}"),
		serum.WithDetail("ref", ref.Path),
		serum.WithDetail("reason", cause.Error()),
		serum.WithCause(cause),
	)
}

// ErrIllegalPayload reports a body that is not a JSON object or otherwise unusable.
func ErrIllegalPayload(reason string) error {
	return serum.Error(CodeIllegalPayload,
		serum.WithMessageTemplate("illegal payload: {{reason}}"),
		serum.WithDetail("reason", reason),
	)
}

// ErrIllegalRef reports a malformed resource address.
func ErrIllegalRef(path, reason string) error {
	return serum.Error(CodeIllegalRef,
		serum.WithMessageTemplate("illegal resource address '{{path}}': {{reason}}"),
		serum.WithDetail("path", path),
		serum.WithDetail("reason", reason),
	)
}

// ErrMissingRevision reports a write without a revision token.
func ErrMissingRevision() error {
	return serum.Error(CodeMissingRevision, serum.WithMessageLiteral(MessageMissingRevision))
}

// ErrSchemaNotPublished reports an instance write against an unpublished schema.
func ErrSchemaNotPublished(schema Ref) error {
	return serum.Error(CodeSchemaNotPublished,
		serum.WithMessageTemplate("schema '{{ref}}' is not published"),
		serum.WithDetail("ref", schema.Path),
	)
}

// ErrSchemaPublished reports an update of a published, and therefore frozen, schema.
func ErrSchemaPublished(schema Ref) error {
	return serum.Error(CodeSchemaPublished,
		serum.WithMessageTemplate("schema '{{ref}}' is published and can no longer be updated"),
		serum.WithDetail("ref", schema.Path),
	)
}

// ErrAttachmentTooLarge reports an upload over the configured limit.
func ErrAttachmentTooLarge(limit int64) error {
	return serum.Error(CodeAttachmentTooLarge,
		serum.WithMessageTemplate("attachment exceeds the maximum size of {{limit}} bytes"),
		serum.WithDetail("limit", strconv.FormatInt(limit, 10)),
	)
}

// ErrAttachmentCorrupted reports stored bytes that no longer match their digest.
func ErrAttachmentCorrupted(digest string) error {
	return serum.Error(CodeAttachmentCorrupted,
		serum.WithMessageTemplate("attachment content does not match digest {{digest}}"),
		serum.WithDetail("digest", digest),
	)
}

// ErrSequenceGap reports a ledger append whose revision does not follow the
// current maximum. It indicates a bug or a corrupted ledger and is never retried.
func ErrSequenceGap(ref Ref, rev, max int64) error {
	return serum.Error(CodeLedgerSequenceGap,
		serum.WithMessageTemplate("ledger sequence gap for '{{ref}}': appending revision {{rev}} after {{max}}"),
		serum.WithDetail("ref", ref.Path),
		serum.WithDetail("rev", strconv.FormatInt(rev, 10)),
		serum.WithDetail("max", strconv.FormatInt(max, 10)),
	)
}

// ErrInternal wraps an infrastructure failure.
func ErrInternal(context string, cause error) error {
	return serum.Errorf(CodeInternal, "%s: %w", context, cause)
}
