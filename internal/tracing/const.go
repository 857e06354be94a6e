package tracing

// Span attribute keys used by nexus.
const (
	AttrKeyErrorCode     = "nexus.error.code"
	AttrKeyResourceKind  = "nexus.resource.kind"
	AttrKeyResourceRef   = "nexus.resource.ref"
	AttrKeyResourceRev   = "nexus.resource.rev"
	AttrKeyExpectedRev   = "nexus.resource.expected_rev"
	AttrKeyBlobDigest    = "nexus.blob.digest"
	AttrKeyBlobBackend   = "nexus.blob.backend"
	AttrKeySearchTotal   = "nexus.search.total"
	AttrKeyHTTPRoute     = "http.route"
	AttrKeyHTTPMethod    = "http.method"
	AttrKeyHTTPStatus    = "http.status_code"
	AttrKeyIndexShard    = "nexus.index.shard"
	AttrKeyNotifySubject = "nexus.notify.subject"
)
