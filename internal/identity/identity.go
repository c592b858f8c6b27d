// Package identity defines the sign-in collaborator the session controller
// listens to, plus a shared fan-out used by every provider.
package identity

import (
	"context"
	"errors"
	"slices"
	"sync"

	"worktracker/internal/core"
)

// ErrNotSignedIn is returned by providers that have no identity to act on.
var ErrNotSignedIn = errors.New("not signed in")

// Provider is an external authentication service. Subscribe delivers the
// current identity, or nil when signed out, on every change; new subscribers
// receive the latest known value right away.
type Provider interface {
	SignIn(ctx context.Context) (core.Identity, error)
	SignOut(ctx context.Context) error
	Subscribe(fn func(*core.Identity)) (unsubscribe func())
}

type listener struct {
	id int
	fn func(*core.Identity)
}

// Notifier fans identity changes out to subscribers. The zero value is ready
// to use. Deliveries are serialized, so every subscriber sees changes in
// publish order.
type Notifier struct {
	deliver sync.Mutex

	mu        sync.Mutex
	listeners []listener
	nextID    int
	current   *core.Identity
	known     bool
}

func (n *Notifier) Subscribe(fn func(*core.Identity)) func() {
	n.deliver.Lock()
	defer n.deliver.Unlock()

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, listener{id: id, fn: fn})
	current, known := clone(n.current), n.known
	n.mu.Unlock()

	if known {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			n.listeners = slices.DeleteFunc(n.listeners, func(l listener) bool { return l.id == id })
			n.mu.Unlock()
		})
	}
}

// Publish records id as the current identity and notifies subscribers. A nil
// id means signed out.
func (n *Notifier) Publish(id *core.Identity) {
	n.deliver.Lock()
	defer n.deliver.Unlock()

	n.mu.Lock()
	n.current = clone(id)
	n.known = true
	listeners := slices.Clone(n.listeners)
	n.mu.Unlock()

	for _, l := range listeners {
		l.fn(clone(id))
	}
}

// Current returns the last published identity. ok is false before the first
// Publish.
func (n *Notifier) Current() (id *core.Identity, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return clone(n.current), n.known
}

func clone(id *core.Identity) *core.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// Local is a provider for a single fixed identity, used for local runs and
// tests where no sign-in service is available.
type Local struct {
	Notifier
	identity core.Identity
}

// NewLocal returns a provider for id. When signedIn is true the identity is
// published immediately, as if restored from an earlier session.
func NewLocal(id core.Identity, signedIn bool) *Local {
	l := &Local{identity: id}
	if signedIn {
		l.Publish(&id)
	} else {
		l.Publish(nil)
	}
	return l
}

func (l *Local) SignIn(ctx context.Context) (core.Identity, error) {
	if err := ctx.Err(); err != nil {
		return core.Identity{}, err
	}
	id := l.identity
	l.Publish(&id)
	return id, nil
}

func (l *Local) SignOut(ctx context.Context) error {
	l.Publish(nil)
	return nil
}
