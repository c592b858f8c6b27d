// Package services holds the sync engine: it loads a user's document into the
// entity store on sign-in and writes the store back after every edit.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"worktracker/internal/core"
	"worktracker/internal/documents"
	applog "worktracker/internal/log"
	"worktracker/internal/state"
)

// ErrStaleSession means the session ended or changed while a remote call was
// in flight. The result of that call has been discarded.
var ErrStaleSession = errors.New("session changed during remote call")

// SyncConfig tunes the write queue.
type SyncConfig struct {
	Debounce time.Duration
	MaxDelay time.Duration
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Debounce: 500 * time.Millisecond,
		MaxDelay: 5 * time.Second,
	}
}

// Syncer binds the entity store to one remote document at a time.
type Syncer struct {
	store   *state.Store
	docs    documents.Store
	cfg     SyncConfig
	metrics *Metrics
	logger  *slog.Logger

	mu            sync.Mutex
	epoch         uint64
	key           string
	queue         *WriteQueue
	unsub         func()
	cancelHydrate context.CancelFunc
}

func NewSyncer(store *state.Store, docs documents.Store, cfg SyncConfig, metrics *Metrics, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultSyncConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	return &Syncer{
		store:   store,
		docs:    docs,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With(applog.FieldComponent, applog.ComponentSync),
	}
}

// Hydrate loads the identity's document into the store. It starts a new
// session epoch, so an older hydrate still in flight is cancelled and its
// result dropped. found is false when the user has no document yet, in which
// case the store is reset to empty collections.
//
// Store listeners run while the Syncer is locked and must not call back into it.
func (s *Syncer) Hydrate(ctx context.Context, identity *core.Identity) (found bool, err error) {
	key := identity.Key()
	if key == "" {
		return false, fmt.Errorf("hydrate: %w", core.ErrNotFound)
	}

	s.mu.Lock()
	if s.cancelHydrate != nil {
		s.cancelHydrate()
	}
	s.epoch++
	epoch := s.epoch
	ctx, cancel := context.WithCancel(ctx)
	s.cancelHydrate = cancel
	s.mu.Unlock()
	defer cancel()

	body, err := s.docs.Get(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.metrics.observeHydrate(ResultStale)
		s.logger.DebugContext(ctx, "Discarded stale document load", applog.FieldUserID, key)
		return false, ErrStaleSession
	}
	s.cancelHydrate = nil

	switch {
	case errors.Is(err, documents.ErrNotFound):
		s.metrics.observeHydrate(ResultMissing)
		s.store.ReplaceAll(core.EmptySnapshot())
		return false, nil
	case err != nil:
		s.metrics.observeHydrate(ResultError)
		return false, fmt.Errorf("load document: %w: %w", core.ErrRemoteUnavailable, err)
	}

	snap, err := core.DecodeSnapshot(body)
	if err != nil {
		s.metrics.observeHydrate(ResultError)
		return false, fmt.Errorf("decode document: %w: %w", core.ErrRemoteUnavailable, err)
	}
	s.store.ReplaceAll(snap)
	s.metrics.observeHydrate(ResultFound)
	s.logger.InfoContext(ctx, "Document loaded", applog.FieldUserID, key, "entities", snap.Len())
	return true, nil
}

// Persist overwrites the identity's document with snap. It does nothing when
// no identity is given. Equal snapshots always produce equal bytes.
func (s *Syncer) Persist(ctx context.Context, identity *core.Identity, snap core.Snapshot) error {
	key := identity.Key()
	if key == "" {
		return nil
	}
	return s.persistKey(ctx, key, snap)
}

func (s *Syncer) persistKey(ctx context.Context, key string, snap core.Snapshot) error {
	body, err := core.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	start := time.Now()
	err = s.docs.Set(ctx, key, body)
	if err != nil {
		s.metrics.observePersist(ResultError, time.Since(start).Seconds())
		return fmt.Errorf("write document: %w: %w", core.ErrRemoteUnavailable, err)
	}
	s.metrics.observePersist(ResultSuccess, time.Since(start).Seconds())
	s.logger.DebugContext(ctx, "Document written", applog.FieldUserID, key, "bytes", len(body))
	return nil
}

// Bind starts forwarding store mutations for identity to a write queue. Any
// previous binding is stopped first.
func (s *Syncer) Bind(ctx context.Context, identity *core.Identity) {
	key := identity.Key()
	s.mu.Lock()
	s.unbindLocked()
	if key == "" {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	queue := NewWriteQueue(func(ctx context.Context, snap core.Snapshot) error {
		if s.currentEpoch() != epoch {
			return ErrStaleSession
		}
		return s.persistKey(ctx, key, snap)
	}, s.cfg.Debounce, s.cfg.MaxDelay, s.metrics, s.logger.With(applog.FieldUserID, key))
	queue.Start(context.WithoutCancel(ctx))
	s.key = key
	s.queue = queue
	s.unsub = s.store.Subscribe(queue.Enqueue)
	s.mu.Unlock()
}

// Unbind ends the session: later results of in-flight calls are discarded,
// the in-flight write is cancelled and pending writes are dropped.
func (s *Syncer) Unbind() {
	s.mu.Lock()
	s.epoch++
	if s.cancelHydrate != nil {
		s.cancelHydrate()
		s.cancelHydrate = nil
	}
	s.unbindLocked()
	s.mu.Unlock()
}

func (s *Syncer) unbindLocked() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	if s.queue != nil {
		s.queue.Stop()
		s.queue = nil
	}
	s.key = ""
}

func (s *Syncer) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Key returns the document key currently bound, or "".
func (s *Syncer) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Flush waits until every accepted edit of the bound session is written.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return nil
	}
	return queue.Flush(ctx)
}

// Status reports the write queue of the bound session. It is the zero value
// when nobody is bound.
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return SyncStatus{}
	}
	return queue.Status()
}

// Close flushes pending edits, then unbinds and waits for the worker to exit.
func (s *Syncer) Close(ctx context.Context) error {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()

	var err error
	if queue != nil {
		err = queue.Flush(ctx)
	}
	s.Unbind()
	if queue != nil {
		select {
		case <-queue.Done():
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}
