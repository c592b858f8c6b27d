// Package session drives the sign-in lifecycle: it reacts to identity events,
// loads the user's document, gates edits while loading and clears everything
// on sign-out.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"worktracker/internal/core"
	"worktracker/internal/identity"
	applog "worktracker/internal/log"
	"worktracker/internal/services"
	"worktracker/internal/state"
)

// maxImportSize bounds Import; a realistic document is a few hundred KB.
const maxImportSize = 16 << 20

type State int

const (
	Loading State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type listener struct {
	id int
	fn func(State)
}

// Controller owns the session. Build one at startup and share it.
type Controller struct {
	store    *state.Store
	syncer   *services.Syncer
	provider identity.Provider
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	identity  *core.Identity
	lastErr   error
	gen       uint64
	unsub     func()
	listeners []listener
	nextID    int
}

// New returns a controller in the Loading state with the store closed to
// edits until the first identity event arrives.
func New(store *state.Store, syncer *services.Syncer, provider identity.Provider, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	store.Lock()
	return &Controller{
		store:    store,
		syncer:   syncer,
		provider: provider,
		logger:   logger.With(applog.FieldComponent, applog.ComponentSession),
		state:    Loading,
	}
}

// Start subscribes to the identity provider. The provider replays the
// current identity, so Start returns once the initial session is settled.
func (c *Controller) Start(ctx context.Context) {
	unsub := c.provider.Subscribe(func(id *core.Identity) {
		c.HandleIdentity(ctx, id)
	})
	c.mu.Lock()
	c.unsub = unsub
	c.mu.Unlock()
}

// Close stops listening for identity events, writes pending edits and
// releases the sync binding.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	return c.syncer.Close(ctx)
}

// HandleIdentity applies an identity event. A nil or empty identity signs
// the session out.
func (c *Controller) HandleIdentity(ctx context.Context, id *core.Identity) {
	if id.Key() == "" {
		c.signOutLocal(ctx)
		return
	}

	c.mu.Lock()
	if c.state == Authenticated && c.identity.Key() == id.Key() {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	cp := *id
	c.identity = &cp
	c.lastErr = nil
	changed := c.setStateLocked(Loading)
	// a switch between users drops the previous user's binding first
	c.syncer.Unbind()
	c.store.Lock()
	c.mu.Unlock()
	c.notify(changed, Loading)

	c.logger.InfoContext(ctx, "Loading session", applog.FieldUserID, cp.Key())
	found, err := c.syncer.Hydrate(ctx, &cp)
	if errors.Is(err, services.ErrStaleSession) {
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if err != nil {
		// loading finished, no data
		c.lastErr = err
		c.store.ReplaceAll(core.EmptySnapshot())
		c.logger.ErrorContext(ctx, "Failed to load document, starting empty", applog.FieldUserID, cp.Key(), "error", err)
	} else {
		c.logger.InfoContext(ctx, "Session ready", applog.FieldUserID, cp.Key(), "found", found)
	}
	c.syncer.Bind(ctx, &cp)
	c.store.Unlock()
	changed = c.setStateLocked(Authenticated)
	c.mu.Unlock()
	c.notify(changed, Authenticated)
}

func (c *Controller) signOutLocal(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	c.syncer.Unbind()
	c.store.ReplaceAll(core.EmptySnapshot())
	c.store.Lock()
	c.identity = nil
	changed := c.setStateLocked(Unauthenticated)
	c.mu.Unlock()

	if changed {
		c.logger.InfoContext(ctx, "Signed out")
	}
	c.notify(changed, Unauthenticated)
}

// SignIn asks the provider to sign in. The resulting identity event drives
// the session.
func (c *Controller) SignIn(ctx context.Context) error {
	if _, err := c.provider.SignIn(ctx); err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// SignOut writes pending edits, clears the session locally and then signs
// out at the provider. The local sign-out happens even when the provider
// call fails; that error is returned.
func (c *Controller) SignOut(ctx context.Context) error {
	if err := c.syncer.Flush(ctx); err != nil {
		c.logger.WarnContext(ctx, "Pending edits not written before sign-out", "error", err)
	}
	c.signOutLocal(ctx)
	if err := c.provider.SignOut(ctx); err != nil {
		c.logger.WarnContext(ctx, "Provider sign-out failed, signed out locally", "error", err)
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Import replaces every collection with the JSON snapshot read from r. The
// import counts as an edit and is persisted.
func (c *Controller) Import(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(r, maxImportSize+1))
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}
	if len(body) > maxImportSize {
		return fmt.Errorf("import larger than %d bytes", maxImportSize)
	}
	snap, err := core.DecodeSnapshot(body)
	if err != nil {
		return fmt.Errorf("decode import: %w", err)
	}
	if err := c.store.Restore(snap); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	c.logger.InfoContext(ctx, "Imported snapshot", "entities", snap.Len())
	return nil
}

// Subscribe registers fn for state transitions.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
			c.mu.Unlock()
		})
	}
}

func (c *Controller) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Controller) notify(changed bool, s State) {
	if !changed {
		return
	}
	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, l := range listeners {
		l.fn(s)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns a copy of the signed-in identity, or nil.
func (c *Controller) Identity() *core.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	cp := *c.identity
	return &cp
}

// LastError is the most recent sign-in or load failure of this session.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Store() *state.Store {
	return c.store
}

func (c *Controller) Snapshot() core.Snapshot {
	return c.store.Snapshot()
}

func (c *Controller) Totals() core.Totals {
	return core.GrandTotals(c.store.Snapshot())
}

func (c *Controller) SyncStatus() services.SyncStatus {
	return c.syncer.Status()
}

// DocumentKey is the key edits are written under, or "" when nothing is bound.
func (c *Controller) DocumentKey() string {
	return c.syncer.Key()
}
