// Package state holds the in-memory entity store: the five collections of one
// signed-in user and the only code allowed to mutate them.
package state

import (
	"errors"
	"slices"
	"sync"

	"worktracker/internal/core"
)

// ErrStoreLocked is returned for user mutations while the store is closed,
// i.e. while a session is loading or nobody is signed in.
var ErrStoreLocked = errors.New("store is locked")

type ChangeKind string

const (
	// ChangeMutation is a user edit. It must be persisted.
	ChangeMutation ChangeKind = "mutation"
	// ChangeReplace is a wholesale load from the remote document or a clear
	// on sign-out. It is never written back.
	ChangeReplace ChangeKind = "replace"
)

// Change is delivered to subscribers after every successful write.
type Change struct {
	Revision uint64
	Kind     ChangeKind
	Snapshot core.Snapshot
}

type listener struct {
	id int
	fn func(Change)
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	data      core.Snapshot
	rev       uint64
	locked    bool
	listeners []listener
	nextID    int
	newID     func() core.ID
}

func New() *Store {
	return &Store{data: core.EmptySnapshot(), newID: core.NewID}
}

// Lock closes the store to user mutations. ReplaceAll still works.
func (s *Store) Lock() {
	s.mu.Lock()
	s.locked = true
	s.mu.Unlock()
}

func (s *Store) Unlock() {
	s.mu.Lock()
	s.locked = false
	s.mu.Unlock()
}

func (s *Store) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}

// Snapshot returns a deep copy of the current collections.
func (s *Store) Snapshot() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Revision increases by one on every successful write.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Subscribe registers fn for change notifications. Listeners run on the
// writer's goroutine after the store lock is released.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.listeners = slices.DeleteFunc(s.listeners, func(l listener) bool { return l.id == id })
			s.mu.Unlock()
		})
	}
}

// ReplaceAll swaps every collection wholesale. Nil collections become empty.
func (s *Store) ReplaceAll(snap core.Snapshot) {
	s.write(ChangeReplace, false, func(d *core.Snapshot) error {
		*d = snap.Normalize()
		return nil
	})
}

// Restore replaces every collection as a user edit, so the result is
// persisted. The snapshot must validate.
func (s *Store) Restore(snap core.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	return s.write(ChangeMutation, true, func(d *core.Snapshot) error {
		*d = snap.Normalize()
		return nil
	})
}

func (s *Store) write(kind ChangeKind, gated bool, fn func(*core.Snapshot) error) error {
	s.mu.Lock()
	if gated && s.locked {
		s.mu.Unlock()
		return ErrStoreLocked
	}
	if err := fn(&s.data); err != nil {
		s.mu.Unlock()
		return err
	}
	s.rev++
	var (
		ch        Change
		listeners []listener
	)
	if len(s.listeners) > 0 {
		ch = Change{Revision: s.rev, Kind: kind, Snapshot: s.data.Clone()}
		listeners = slices.Clone(s.listeners)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(ch)
	}
	return nil
}

func (s *Store) mutate(fn func(*core.Snapshot) error) error {
	return s.write(ChangeMutation, true, fn)
}

func indexOf[T any](items []T, id core.ID, idOf func(T) core.ID) int {
	return slices.IndexFunc(items, func(it T) bool { return idOf(it) == id })
}

func removeByID[T any](items []T, id core.ID, idOf func(T) core.ID) ([]T, error) {
	i := indexOf(items, id, idOf)
	if i < 0 {
		return items, core.ErrNotFound
	}
	return slices.Delete(items, i, i+1), nil
}
