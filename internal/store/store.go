package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/metrics"
	"github.com/roach88/nexus/internal/resource"
)

// Ledger is the durable revision log the store appends to.
type Ledger interface {
	Append(ctx context.Context, snap resource.Snapshot) (resource.Snapshot, error)
	Get(ctx context.Context, ref resource.Ref, rev int64) (resource.Snapshot, error)
	History(ctx context.Context, ref resource.Ref) ([]resource.Snapshot, error)
}

// Validator checks schema and instance payloads.
type Validator interface {
	// CheckSchema reports whether a schema payload is a usable ruleset.
	CheckSchema(schema doc.Object) error
	// Validate checks an instance payload against a schema payload.
	Validate(schema, payload doc.Object) error
}

// Observer is notified of every committed revision.
type Observer interface {
	Committed(snap resource.Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(resource.Snapshot)

// Committed calls f.
func (f ObserverFunc) Committed(snap resource.Snapshot) { f(snap) }

// Clock stamps revisions.
type Clock interface {
	Now() time.Time
}

// IDGenerator names new instances.
type IDGenerator interface {
	Generate() string
}

// Store applies resource mutations to a ledger.
type Store struct {
	ledger    Ledger
	validator Validator
	observers []Observer
	clock     Clock
	ids       IDGenerator
	locks     *keyedMutex
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithValidator sets the payload validator. Without one, schemas are
// accepted as is and instances are not validated.
func WithValidator(v Validator) Option {
	return func(s *Store) { s.validator = v }
}

// WithObserver registers observers of committed revisions.
func WithObserver(obs ...Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, obs...) }
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIDGenerator overrides instance id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records write outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a store over ledger.
func New(ledger Ledger, opts ...Option) *Store {
	s := &Store{
		ledger: ledger,
		clock:  SystemClock{},
		ids:    UUIDv7Generator{},
		locks:  newKeyedMutex(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddObserver registers an observer after construction. It must be called
// before the store takes writes.
func (s *Store) AddObserver(obs Observer) {
	s.observers = append(s.observers, obs)
}

func (s *Store) notify(snap resource.Snapshot) {
	for _, obs := range s.observers {
		obs.Committed(snap)
	}
}
