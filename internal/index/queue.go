package index

import (
	"sync"

	"github.com/roach88/nexus/internal/resource"
)

// shardQueue is an unbounded FIFO of committed snapshots for one shard.
// Enqueue never blocks so the store's commit path is not held up by
// indexing. The signal channel has a buffer of one and coalesces wakeups.
type shardQueue struct {
	mu     sync.Mutex
	items  []resource.Snapshot
	closed bool
	signal chan struct{}
}

func newShardQueue() *shardQueue {
	return &shardQueue{
		items:  make([]resource.Snapshot, 0, 32),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends snap. It reports false once the queue is closed.
func (q *shardQueue) Enqueue(snap resource.Snapshot) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, snap)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the oldest snapshot without blocking.
func (q *shardQueue) TryDequeue() (resource.Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return resource.Snapshot{}, false
	}
	snap := q.items[0]
	// Release the payload for GC; the backing array outlives the slice head.
	q.items[0] = resource.Snapshot{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return snap, true
}

// Wait is readable when items may be available, and closed after Close.
func (q *shardQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *shardQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further enqueues and wakes the worker, which drains what is
// left before exiting.
func (q *shardQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
