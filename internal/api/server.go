// Package api is the HTTP facade over the resource store, the attachment
// service and the search index. All resource routes live under /v0.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/nexus/internal/attach"
	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/index"
	"github.com/roach88/nexus/internal/metrics"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/tracing"
)

// DefaultMaxPayload bounds JSON request bodies.
const DefaultMaxPayload int64 = 10 << 20

// Store is the resource store as the facade uses it.
type Store interface {
	Create(ctx context.Context, ref resource.Ref, payload doc.Object) (resource.Snapshot, error)
	CreateInstance(ctx context.Context, schema resource.Ref, payload doc.Object) (resource.Snapshot, error)
	Update(ctx context.Context, ref resource.Ref, payload doc.Object, expectedRev int64) (resource.Snapshot, error)
	Deprecate(ctx context.Context, ref resource.Ref, expectedRev int64) (resource.Snapshot, error)
	Publish(ctx context.Context, ref resource.Ref, expectedRev int64) (resource.Snapshot, error)
	Read(ctx context.Context, ref resource.Ref, rev int64) (resource.Snapshot, error)
}

// Attachments stores and serves instance attachments.
type Attachments interface {
	Put(ctx context.Context, ref resource.Ref, expectedRev int64, up attach.Upload) (resource.Snapshot, error)
	Get(ctx context.Context, ref resource.Ref, rev int64) (resource.Snapshot, io.ReadCloser, error)
	Remove(ctx context.Context, ref resource.Ref, expectedRev int64) (resource.Snapshot, error)
}

// Searcher answers listing and search requests.
type Searcher interface {
	Search(ctx context.Context, q index.Query) (index.Result, error)
}

// Server routes requests to the store, attachments and search.
type Server struct {
	store       Store
	attachments Attachments
	search      Searcher
	baseURL     string
	maxPayload  int64
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// Option configures a Server.
type Option func(*Server)

// WithBaseURL sets the public URL that prefixes every @id.
func WithBaseURL(u string) Option {
	return func(s *Server) { s.baseURL = u }
}

// WithMaxPayload caps JSON request bodies in bytes. Non-positive values
// keep the default.
func WithMaxPayload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPayload = n
		}
	}
}

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics counts requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracer starts a span per request.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// New builds a Server.
func New(store Store, attachments Attachments, search Searcher, opts ...Option) *Server {
	s := &Server{
		store:       store,
		attachments: attachments,
		search:      search,
		baseURL:     "http://localhost:8080",
		maxPayload:  DefaultMaxPayload,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// handlerFunc returns the error to report, or nil once it has written a
// response.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, k := range []resource.Kind{resource.KindOrganization, resource.KindDomain, resource.KindSchema} {
		p := resourcePattern(k)
		s.route(mux, "PUT "+p, s.putResource(k))
		s.route(mux, "GET "+p, s.getResource(k))
		s.route(mux, "DELETE "+p, s.deprecateResource(k))
	}
	s.route(mux, "PATCH "+resourcePattern(resource.KindSchema)+"/config", s.patchSchemaConfig)

	instance := resourcePattern(resource.KindInstance)
	s.route(mux, "POST /v0/data/{org}/{dom}/{name}/{ver}", s.postInstance)
	s.route(mux, "PUT "+instance, s.putResource(resource.KindInstance))
	s.route(mux, "GET "+instance, s.getResource(resource.KindInstance))
	s.route(mux, "DELETE "+instance, s.deprecateResource(resource.KindInstance))

	s.route(mux, "PUT "+instance+"/attachment", s.putAttachment)
	s.route(mux, "GET "+instance+"/attachment", s.getAttachment)
	s.route(mux, "DELETE "+instance+"/attachment", s.deleteAttachment)

	s.route(mux, "GET /v0/organizations", s.searchKind(resource.KindOrganization, 0))
	s.route(mux, "GET /v0/domains/{org}", s.searchKind(resource.KindDomain, 1))
	s.route(mux, "GET /v0/schemas/{org}", s.searchKind(resource.KindSchema, 1))
	s.route(mux, "GET /v0/schemas/{org}/{dom}", s.searchKind(resource.KindSchema, 2))
	s.route(mux, "GET /v0/data/{org}", s.searchKind(resource.KindInstance, 1))
	s.route(mux, "GET /v0/data/{org}/{dom}", s.searchKind(resource.KindInstance, 2))
	s.route(mux, "GET /v0/data/{org}/{dom}/{name}/{ver}", s.searchKind(resource.KindInstance, 4))

	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// pathParams names the wildcard segments in order of depth.
var pathParams = []string{"org", "dom", "name", "ver", "id"}

func resourcePattern(k resource.Kind) string {
	p := "/v0/" + k.Collection()
	for _, name := range pathParams[:k.Depth()] {
		p += "/{" + name + "}"
	}
	return p
}

// refFromPath builds a ref from the first depth wildcards of r.
func refFromPath(r *http.Request, depth int) (resource.Ref, error) {
	segments := make([]string, depth)
	for i := range segments {
		segments[i] = r.PathValue(pathParams[i])
	}
	return resource.NewRef(segments...)
}

func (s *Server) route(mux *http.ServeMux, pattern string, h handlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := tracing.SetTracer(r.Context(), s.tracer)
		ctx, span := tracing.Start(ctx, pattern, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(
			attribute.String(tracing.AttrKeyHTTPRoute, pattern),
			attribute.String(tracing.AttrKeyHTTPMethod, r.Method),
		)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if err := h(rec, r.WithContext(ctx)); err != nil {
			tracing.SetSpanError(ctx, err)
			s.writeError(rec, r, err)
		}

		span.SetAttributes(attribute.Int(tracing.AttrKeyHTTPStatus, rec.status))
		s.metrics.ObserveRequest(r.Method, pattern, rec.status)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
