package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/api"
	"github.com/roach88/nexus/internal/attach"
	"github.com/roach88/nexus/internal/config"
	"github.com/roach88/nexus/internal/index"
	"github.com/roach88/nexus/internal/ledger"
	"github.com/roach88/nexus/internal/metrics"
	"github.com/roach88/nexus/internal/notify"
	"github.com/roach88/nexus/internal/store"
	"github.com/roach88/nexus/internal/tracing"
	"github.com/roach88/nexus/internal/validate"
)

// Version is reported in exported spans. Set at link time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command. Non-empty flags override
// the config file.
type ServeOptions struct {
	*RootOptions
	Listen    string
	PublicURL string
	Database  string
	BlobDir   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the nexus HTTP API.

Opens (or creates) the revision ledger, starts the search indexer and,
when nats.url is configured, the revision notifier. Stops gracefully on
SIGINT or SIGTERM.

Example:
  nexus serve --config nexus.yaml
  nexus serve --db /tmp/nexus.db --listen :9090 -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.PublicURL, "public-url", "", "base URL used in @id values (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.BlobDir, "blob-dir", "", "attachment directory for the fs backend (overrides config)")

	return cmd
}

// apply layers non-empty flags over cfg and revalidates.
func (o *ServeOptions) apply(cfg config.Config) (config.Config, error) {
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	if o.PublicURL != "" {
		cfg.PublicURL = o.PublicURL
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.BlobDir != "" {
		cfg.Blobs.Dir = o.BlobDir
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg, err = opts.apply(cfg); err != nil {
		return err
	}
	logger, err := opts.newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           stack.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	logger.Info("nexus listening", "addr", ln.Addr().String(), "public_url", cfg.BaseURL())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("nexus stopped")
	return nil
}

// app is the wired component graph behind the HTTP API.
type app struct {
	logger   *slog.Logger
	ledger   *ledger.Ledger
	index    *index.Index
	store    *store.Store
	notifier *notify.Notifier
	nats     *notify.JetStream
	tracer   *tracing.Provider
	server   *api.Server
	cancel   context.CancelFunc
	done     chan struct{}
}

// newApp opens storage and starts background workers. Workers run until
// Close.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, retErr error) {
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &app{logger: logger, cancel: cancel, done: make(chan struct{})}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	var err error
	a.tracer, err = tracing.NewProvider(ctx, tracing.Options{
		File:     cfg.Tracing.File,
		OTLPHTTP: cfg.Tracing.OTLPHTTP,
		Insecure: cfg.Tracing.Insecure,
		Version:  Version,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start tracing", err)
	}
	m := metrics.New()

	if a.ledger, err = ledger.Open(cfg.Database); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	if a.index, err = index.New(a.ledger.DB(), cfg.Index.Shards,
		index.WithLogger(logger.With("component", "index")),
		index.WithMetrics(m),
	); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open search index", err)
	}
	a.index.Start(workCtx)

	a.store = store.New(a.ledger,
		store.WithValidator(validate.New(logger.With("component", "validate"))),
		store.WithObserver(a.index),
		store.WithLogger(logger.With("component", "store")),
		store.WithMetrics(m),
	)

	if cfg.NATS.URL != "" {
		if a.nats, err = notify.Connect(ctx, notify.Options{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Stream:  cfg.NATS.Stream,
		}); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect to NATS", err)
		}
		a.notifier = notify.New(a.nats,
			notify.WithSubject(cfg.NATS.Subject),
			notify.WithBaseURL(cfg.BaseURL()),
			notify.WithLogger(logger.With("component", "notify")),
			notify.WithMetrics(m),
		)
		a.store.AddObserver(a.notifier)
		go func() {
			defer close(a.done)
			a.notifier.Run(workCtx)
		}()
	}

	blobs, err := openBlobs(ctx, cfg.Blobs)
	if err != nil {
		return nil, err
	}
	attachments := attach.NewService(a.store, blobs,
		attach.WithMaxSize(cfg.Blobs.MaxSize),
		attach.WithLogger(logger.With("component", "attach")),
		attach.WithMetrics(m),
	)

	a.server = api.New(a.store, attachments, a.index,
		api.WithBaseURL(cfg.BaseURL()),
		api.WithLogger(logger.With("component", "api")),
		api.WithMetrics(m),
		api.WithTracer(a.tracer.Tracer()),
	)
	logger.Info("components ready",
		"database", cfg.Database,
		"blobs", blobs.Backend(),
		"shards", cfg.Index.Shards,
		"nats", cfg.NATS.URL != "",
	)
	return a, nil
}

func openBlobs(ctx context.Context, cfg config.Blobs) (attach.BlobStore, error) {
	switch cfg.Backend {
	case config.BackendS3:
		s, err := attach.NewS3BlobStore(ctx, attach.S3Options{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open S3 blob store", err)
		}
		return s, nil
	default:
		s, err := attach.NewFSBlobStore(cfg.Dir)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open blob directory", err)
		}
		return s, nil
	}
}

// Handler is the routed API.
func (a *app) Handler() http.Handler {
	return a.server.Handler()
}

// Close stops workers in dependency order: the notifier publishes what it
// buffered, the indexer drains, then storage closes.
func (a *app) Close() {
	if a.notifier != nil {
		a.notifier.Close()
		<-a.done
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.logger.Warn("close NATS connection", "error", err)
		}
	}
	if a.index != nil {
		a.index.Close()
	}
	a.cancel()
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Error("close database", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("flush spans", "error", err)
	}
}
