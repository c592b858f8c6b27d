package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"worktracker/internal/core"
	"worktracker/internal/state"
)

// ErrQueueStopped is returned by Flush once the queue has been stopped with
// writes still pending.
var ErrQueueStopped = errors.New("write queue stopped")

// PersistFunc writes one full snapshot.
type PersistFunc func(ctx context.Context, snap core.Snapshot) error

// SyncStatus is the "not synced" indicator shown to the user.
type SyncStatus struct {
	Pending       bool
	InFlight      bool
	Revision      uint64 // last revision written successfully
	LastPersistAt time.Time
	LastError     error
	Persists      uint64
	Failures      uint64
}

// Synced reports whether every accepted change has reached the remote store.
func (s SyncStatus) Synced() bool {
	return !s.Pending && !s.InFlight && s.LastError == nil
}

// WriteQueue coalesces store changes into as few document writes as
// possible. A single worker goroutine owns the remote write, so at most one
// persist is in flight. A burst of changes is written once, after the burst
// has been quiet for debounce or maxDelay has passed since its first change,
// whichever comes first.
type WriteQueue struct {
	persist  PersistFunc
	debounce time.Duration
	maxDelay time.Duration
	metrics  *Metrics
	logger   *slog.Logger

	mu           sync.Mutex
	pending      *state.Change
	firstPending time.Time
	lastEnqueue  time.Time
	inflight     bool
	stopped      bool
	dropped      bool
	status       SyncStatus
	idle         chan struct{}

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWriteQueue(persist PersistFunc, debounce, maxDelay time.Duration, metrics *Metrics, logger *slog.Logger) *WriteQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if maxDelay < debounce {
		maxDelay = debounce
	}
	idle := make(chan struct{})
	close(idle)
	return &WriteQueue{
		persist:  persist,
		debounce: debounce,
		maxDelay: maxDelay,
		metrics:  metrics,
		logger:   logger,
		idle:     idle,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. The queue stops when ctx is cancelled or Stop
// is called.
func (q *WriteQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped || q.ctx != nil {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	go q.run()
}

// Enqueue offers a change. Replace changes and changes older than the one
// already pending are ignored.
func (q *WriteQueue) Enqueue(ch state.Change) {
	if ch.Kind != state.ChangeMutation {
		return
	}
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	if q.pending != nil {
		if ch.Revision <= q.pending.Revision {
			q.mu.Unlock()
			return
		}
		q.metrics.observeCoalesced()
	} else {
		q.firstPending = time.Now()
	}
	q.pending = &ch
	q.lastEnqueue = time.Now()
	q.status.Pending = true
	q.markBusyLocked()
	q.mu.Unlock()

	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Flush blocks until nothing is pending or in flight, then returns the
// outcome of the last write.
func (q *WriteQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
	case <-q.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped && q.dropped {
		return ErrQueueStopped
	}
	return q.status.LastError
}

// Stop cancels the in-flight write and drops pending changes. It does not
// wait for the worker; use Done for that.
func (q *WriteQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.dropped = q.pending != nil || q.inflight
	q.pending = nil
	cancel := q.cancel
	q.mu.Unlock()

	if q.dropped {
		q.logger.Debug("Dropped pending snapshot on stop")
	}
	if cancel != nil {
		cancel()
	} else {
		// never started
		close(q.done)
	}
}

// Done is closed when the worker has exited.
func (q *WriteQueue) Done() <-chan struct{} {
	return q.done
}

func (q *WriteQueue) Status() SyncStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.status
	s.InFlight = q.inflight
	return s
}

func (q *WriteQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.kick:
		}
		if !q.waitQuiet() {
			return
		}
		q.writePending()
	}
}

// waitQuiet sleeps until the pending change is due. It returns false when the
// queue was cancelled meanwhile.
func (q *WriteQueue) waitQuiet() bool {
	for {
		q.mu.Lock()
		if q.pending == nil {
			q.mu.Unlock()
			return true
		}
		due := q.lastEnqueue.Add(q.debounce)
		if deadline := q.firstPending.Add(q.maxDelay); deadline.Before(due) {
			due = deadline
		}
		q.mu.Unlock()

		wait := time.Until(due)
		if wait <= 0 {
			return true
		}
		timer := time.NewTimer(wait)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			return false
		case <-q.kick:
			// a newer change arrived; recompute the deadline
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *WriteQueue) writePending() {
	q.mu.Lock()
	ch := q.pending
	q.pending = nil
	if ch == nil {
		q.markIdleLocked()
		q.mu.Unlock()
		return
	}
	q.inflight = true
	q.mu.Unlock()

	err := q.persist(q.ctx, ch.Snapshot)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight = false
	switch {
	case q.ctx.Err() != nil:
		// cancelled by Stop; the outcome belongs to a session that is gone
	case err != nil:
		q.status.Failures++
		q.status.LastError = err
		q.logger.Warn("Document write failed, local state kept", "revision", ch.Revision, "error", err)
	default:
		q.status.Persists++
		q.status.LastError = nil
		q.status.Revision = ch.Revision
		q.status.LastPersistAt = time.Now()
	}
	if q.pending == nil {
		q.status.Pending = false
		q.markIdleLocked()
	}
}

func (q *WriteQueue) markBusyLocked() {
	select {
	case <-q.idle:
		q.idle = make(chan struct{})
	default:
	}
}

func (q *WriteQueue) markIdleLocked() {
	select {
	case <-q.idle:
	default:
		close(q.idle)
	}
}
