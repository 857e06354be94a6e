// Package notify publishes committed revisions to NATS JetStream.
//
// The Notifier is a store observer. Committed only hands the snapshot to a
// bounded buffer; a separate Run loop publishes. When the buffer is full
// the notification is dropped and counted, never blocking a write.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/nexus/internal/metrics"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/tracing"
)

// Outcome labels for the notifications counter.
const (
	OutcomePublished = "published"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

// DefaultSubject prefixes every revision subject.
const DefaultSubject = "nexus.revisions"

const (
	defaultBuffer  = 1024
	publishTimeout = 5 * time.Second
)

// Publisher sends one message. msgID deduplicates redeliveries.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// Event is the JSON body of a revision notification.
type Event struct {
	ID         string         `json:"@id"`
	Kind       resource.Kind  `json:"kind"`
	Path       string         `json:"path"`
	Rev        int64          `json:"rev"`
	Event      resource.Event `json:"event"`
	Deprecated bool           `json:"deprecated"`
	Published  bool           `json:"published,omitempty"`
	Hash       string         `json:"payloadHash"`
	Digest     string         `json:"attachmentDigest,omitempty"`
	At         time.Time      `json:"at"`
}

// NewEvent describes snap. baseURL prefixes the resource's URL path.
func NewEvent(snap resource.Snapshot, baseURL string) Event {
	ev := Event{
		ID:         baseURL + snap.Ref.URLPath(),
		Kind:       snap.Ref.Kind,
		Path:       snap.Ref.Path,
		Rev:        snap.Rev,
		Event:      snap.Event,
		Deprecated: snap.Deprecated,
		Published:  snap.Published,
		Hash:       snap.PayloadHash,
		At:         snap.CreatedAt.UTC(),
	}
	if snap.Attachment != nil {
		ev.Digest = snap.Attachment.Digest
	}
	return ev
}

// Subject is base.kind.event, e.g. nexus.revisions.instance.created.
func Subject(base string, snap resource.Snapshot) string {
	return base + "." + string(snap.Ref.Kind) + "." + string(snap.Event)
}

// MsgID is unique per revision so JetStream drops duplicates.
func MsgID(snap resource.Snapshot) string {
	return snap.Ref.Path + "@" + strconv.FormatInt(snap.Rev, 10)
}

// Notifier buffers committed revisions and publishes them.
type Notifier struct {
	pub     Publisher
	subject string
	baseURL string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	ch     chan resource.Snapshot
	closed bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSubject sets the subject prefix. Empty keeps DefaultSubject.
func WithSubject(s string) Option {
	return func(n *Notifier) {
		if s != "" {
			n.subject = s
		}
	}
}

// WithBaseURL sets the public URL used for @id in messages.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = u }
}

// WithBuffer sets how many revisions may wait for publication.
func WithBuffer(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.ch = make(chan resource.Snapshot, size)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithMetrics counts notification outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// New returns a Notifier publishing through pub.
func New(pub Publisher, opts ...Option) *Notifier {
	n := &Notifier{
		pub:     pub,
		subject: DefaultSubject,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		ch:      make(chan resource.Snapshot, defaultBuffer),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Committed queues snap for publication without blocking.
func (n *Notifier) Committed(snap resource.Snapshot) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- snap:
	default:
		n.metrics.Notified(OutcomeDropped)
		n.logger.Warn("notification buffer full, dropping", "ref", snap.Ref.String(), "rev", snap.Rev)
	}
}

// Close stops accepting snapshots. Run publishes what is buffered and
// returns.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
}

// Run publishes buffered snapshots until Close or ctx cancellation.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-n.ch:
			if !ok {
				return
			}
			if err := n.publish(ctx, snap); err != nil {
				n.metrics.Notified(OutcomeFailed)
				n.logger.Error("publish revision", "ref", snap.Ref.String(), "rev", snap.Rev, "error", err)
				continue
			}
			n.metrics.Notified(OutcomePublished)
		}
	}
}

func (n *Notifier) publish(ctx context.Context, snap resource.Snapshot) (err error) {
	subject := Subject(n.subject, snap)
	ctx, span := tracing.Start(ctx, "notify.publish")
	span.SetAttributes(tracing.RefAttributes(snap.Ref)...)
	span.SetAttributes(attribute.String(tracing.AttrKeyNotifySubject, subject))
	defer tracing.End(ctx, &err)

	data, err := json.Marshal(NewEvent(snap, n.baseURL))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return n.pub.Publish(ctx, subject, data, MsgID(snap))
}
