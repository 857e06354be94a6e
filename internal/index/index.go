// Package index maintains the asynchronous search projection of the
// revision ledger.
//
// The index observes store commits and applies them on sharded workers.
// A ref always hashes to the same shard, so its revisions are applied in
// the order they were committed. Readers that need read-your-writes call
// WaitIndexed with the revision a write returned.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/nexus/internal/metrics"
	"github.com/roach88/nexus/internal/resource"
)

//go:embed schema.sql
var schemaSQL string

// DefaultShards is used when New is given a non-positive shard count.
const DefaultShards = 4

// ErrClosed is returned by WaitIndexed after Close.
var ErrClosed = errors.New("index closed")

// Index is the search projection plus its indexing workers.
type Index struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	shards  []*shardQueue

	// pending counts snapshots enqueued but not yet applied.
	pending atomic.Int64

	mu      sync.Mutex
	indexed map[string]int64
	waiters map[string][]waiter
	closed  bool

	startOnce sync.Once
	wg        sync.WaitGroup
}

type waiter struct {
	rev int64
	ch  chan error
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger for indexing failures.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// WithMetrics reports queue depth and indexing outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// New creates the projection tables in db and returns an index with the
// given number of shards. Workers do not run until Start.
func New(db *sql.DB, shards int, opts ...Option) (*Index, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("create search tables: %w", err)
	}
	if shards <= 0 {
		shards = DefaultShards
	}

	ix := &Index{
		db:      db,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		shards:  make([]*shardQueue, shards),
		indexed: make(map[string]int64),
		waiters: make(map[string][]waiter),
	}
	for i := range ix.shards {
		ix.shards[i] = newShardQueue()
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Start launches one worker per shard. Workers stop when ctx is cancelled
// or after Close has drained their queues.
func (ix *Index) Start(ctx context.Context) {
	ix.startOnce.Do(func() {
		for i, q := range ix.shards {
			ix.wg.Add(1)
			go func() {
				defer ix.wg.Done()
				ix.work(ctx, i, q)
			}()
		}
		ix.logger.Info("search index started", "shards", len(ix.shards))
	})
}

// Close stops accepting commits, waits for the workers to drain and fails
// any outstanding waiters with ErrClosed.
func (ix *Index) Close() {
	for _, q := range ix.shards {
		q.Close()
	}
	ix.wg.Wait()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closed = true
	for key, ws := range ix.waiters {
		for _, w := range ws {
			w.ch <- ErrClosed
		}
		delete(ix.waiters, key)
	}
}

// Committed enqueues snap for indexing. It never blocks.
func (ix *Index) Committed(snap resource.Snapshot) {
	shard := ix.shardFor(snap.Ref)
	q := ix.shards[shard]
	ix.pending.Add(1)
	if !q.Enqueue(snap) {
		ix.pending.Add(-1)
		ix.logger.Warn("index closed, dropping revision", "ref", snap.Ref.String(), "rev", snap.Rev)
		return
	}
	ix.metrics.SetQueueDepth(shard, q.Len())
}

func (ix *Index) shardFor(ref resource.Ref) int {
	h := fnv.New32a()
	h.Write([]byte(ref.Path))
	return int(h.Sum32() % uint32(len(ix.shards)))
}

func (ix *Index) work(ctx context.Context, shard int, q *shardQueue) {
	for {
		if snap, ok := q.TryDequeue(); ok {
			ix.metrics.SetQueueDepth(shard, q.Len())
			err := ix.apply(ctx, snap)
			ix.pending.Add(-1)
			ix.metrics.Indexed(err)
			if err != nil {
				ix.logger.Error("index revision", "ref", snap.Ref.String(), "rev", snap.Rev, "error", err)
			}
			ix.settle(snap.Ref, snap.Rev, err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case _, open := <-q.Wait():
			if !open && q.Len() == 0 {
				return
			}
		}
	}
}

// settle records the outcome of applying rev and releases matching waiters.
func (ix *Index) settle(ref resource.Ref, rev int64, err error) {
	key := ref.Path

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err == nil && rev > ix.indexed[key] {
		ix.indexed[key] = rev
	}
	done := ix.indexed[key]

	var keep []waiter
	for _, w := range ix.waiters[key] {
		switch {
		case w.rev <= done:
			w.ch <- nil
		case err != nil && w.rev == rev:
			w.ch <- err
		default:
			keep = append(keep, w)
		}
	}
	if len(keep) == 0 {
		delete(ix.waiters, key)
	} else {
		ix.waiters[key] = keep
	}
}

// WaitIndexed blocks until rev of ref (or a later revision) is searchable.
// It returns the indexing error if that revision failed to apply.
func (ix *Index) WaitIndexed(ctx context.Context, ref resource.Ref, rev int64) error {
	key := ref.Path

	ix.mu.Lock()
	if ix.indexed[key] >= rev {
		ix.mu.Unlock()
		return nil
	}
	if ix.closed {
		ix.mu.Unlock()
		return ErrClosed
	}
	w := waiter{rev: rev, ch: make(chan error, 1)}
	ix.waiters[key] = append(ix.waiters[key], w)
	ix.mu.Unlock()

	// A revision indexed before a restart is only visible in the table.
	if stored, err := ix.storedRev(ctx, ref); err == nil && stored >= rev {
		ix.settle(ref, stored, nil)
	}

	select {
	case err := <-w.ch:
		return err
	case <-ctx.Done():
		ix.dropWaiter(key, w)
		return ctx.Err()
	}
}

func (ix *Index) dropWaiter(key string, target waiter) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ws := ix.waiters[key]
	for i, w := range ws {
		if w.ch == target.ch {
			ix.waiters[key] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(ix.waiters[key]) == 0 {
		delete(ix.waiters, key)
	}
}

func (ix *Index) storedRev(ctx context.Context, ref resource.Ref) (int64, error) {
	var rev int64
	err := ix.db.QueryRowContext(ctx,
		`SELECT rev FROM search_documents WHERE resource_id = ?`, ref.Path).Scan(&rev)
	if err != nil {
		return 0, err
	}
	return rev, nil
}

// Drain waits until every enqueued revision has been applied.
func (ix *Index) Drain(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for ix.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
