package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
)

// Module names the service in exported spans.
const Module = "github.com/roach88/nexus"

// Options selects span exporters. With neither set, tracing is disabled.
type Options struct {
	// File receives pretty-printed spans.
	File string
	// OTLPHTTP exports to the OTLP/HTTP endpoint configured by the standard
	// OTEL_EXPORTER_OTLP_* environment variables.
	OTLPHTTP bool
	Insecure bool
	Version  string
}

// Provider owns the exporters behind a tracer.
type Provider struct {
	tp   *sdktrace.TracerProvider
	file *fileSpanExporter
}

// NewProvider builds a tracer provider. It returns (nil, nil) when opts
// enables no exporter; a nil *Provider is valid and yields no-op tracers.
func NewProvider(ctx context.Context, opts Options) (_ *Provider, retErr error) {
	res, err := newResource(opts.Version)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	exporters := []sdktrace.TracerProviderOption{}

	fileExporter, err := newFileSpanExporter(opts.File)
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil && fileExporter != nil {
			fileExporter.Shutdown(ctx)
		}
	}()
	if fileExporter != nil {
		exporters = append(exporters, sdktrace.WithBatcher(fileExporter))
	}

	if opts.OTLPHTTP {
		httpOpts := []otlptracehttp.Option{}
		if opts.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		httpExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(httpOpts...))
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, sdktrace.WithBatcher(httpExporter))
	}

	if len(exporters) == 0 {
		return nil, nil
	}
	providerOpts = append(providerOpts, exporters...)
	return &Provider{tp: sdktrace.NewTracerProvider(providerOpts...), file: fileExporter}, nil
}

// Tracer returns the named tracer, or a no-op tracer for a nil provider.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return trace.NewNoopTracerProvider().Tracer("")
	}
	return p.tp.Tracer(Module)
}

// Shutdown flushes pending spans and closes exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newResource(version string) (*sdkresource.Resource, error) {
	if version == "" {
		version = "dev"
	}
	// Schemaless so it merges with Default regardless of the semconv
	// version the SDK was built against.
	own := sdkresource.NewSchemaless(
		semconv.ServiceNameKey.String(Module),
		semconv.ServiceVersionKey.String(version),
	)
	res, err := sdkresource.Merge(sdkresource.Default(), own)
	if err != nil {
		return nil, err
	}
	return sdkresource.Merge(res, sdkresource.Environment())
}

// fileSpanExporter closes its file when the exporter shuts down.
type fileSpanExporter struct {
	sdktrace.SpanExporter
	io.Closer
}

func (e *fileSpanExporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	defer e.Closer.Close()
	return e.SpanExporter.Shutdown(ctx)
}

func newFileSpanExporter(name string) (*fileSpanExporter, error) {
	if name == "" {
		return nil, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(f),
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSpanExporter{exp, f}, nil
}
