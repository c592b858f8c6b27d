package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"worktracker/internal/core"
	"worktracker/internal/documents"
	"worktracker/internal/documents/memory"
	"worktracker/internal/state"
)

var (
	alice = &core.Identity{ID: "alice", Name: "Alice"}
	bob   = &core.Identity{ID: "bob", Name: "Bob"}
)

func newTestSyncer(t *testing.T, docs documents.Store) (*Syncer, *state.Store, *Metrics) {
	t.Helper()
	store := state.New()
	m := NewMetrics(prometheus.NewRegistry())
	s := NewSyncer(store, docs, SyncConfig{Debounce: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}, m, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, store, m
}

func acmeSnapshot() core.Snapshot {
	acme := core.NewCompany("acme", core.CompanyInput{Name: "Acme", BaseRate: core.Money{Cents: 5000}, DeductionPercent: 10})
	s := core.EmptySnapshot()
	s.Companies = append(s.Companies, acme)
	s.WorkRecords = append(s.WorkRecords, core.WorkRecord{ID: "w1", CompanyID: "acme", Hours: 10, Rate: acme.PayRate})
	s.Expenses = append(s.Expenses, core.Expense{ID: "e1", Amount: core.Money{Cents: 5000}})
	s.Insurance = append(s.Insurance, core.InsuranceItem{ID: "i1", Amount: core.Money{Cents: 2000}})
	return s
}

// gatedDocs blocks Get and Set until released, ignoring cancellation, to
// model a remote call that completes after the session ended.
type gatedDocs struct {
	*memory.Store
	started chan string
	release chan struct{}
}

func newGatedDocs() *gatedDocs {
	return &gatedDocs{Store: memory.New(), started: make(chan string, 10), release: make(chan struct{})}
}

func (g *gatedDocs) Get(ctx context.Context, key string) ([]byte, error) {
	g.started <- key
	<-g.release
	return g.Store.Get(context.Background(), key)
}

func (g *gatedDocs) Set(ctx context.Context, key string, body []byte) error {
	g.started <- key
	<-g.release
	return g.Store.Set(context.Background(), key, body)
}

type failingDocs struct{ err error }

func (f failingDocs) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingDocs) Set(context.Context, string, []byte) error { return f.err }

func TestHydrateMissingDocument(t *testing.T) {
	s, store, m := newTestSyncer(t, memory.New())
	store.ReplaceAll(acmeSnapshot())

	found, err := s.Hydrate(context.Background(), alice)
	if err != nil || found {
		t.Fatalf("Hydrate = (%v, %v), want (false, nil)", found, err)
	}
	if n := store.Snapshot().Len(); n != 0 {
		t.Fatalf("store should be empty for a new user, has %d entities", n)
	}
	if v := testutil.ToFloat64(m.hydrates.WithLabelValues(ResultMissing)); v != 1 {
		t.Errorf("missing hydrates = %v, want 1", v)
	}
}

func TestHydrateRoundTrip(t *testing.T) {
	docs := memory.New()
	s, store, m := newTestSyncer(t, docs)
	want := acmeSnapshot()

	if err := s.Persist(context.Background(), alice, want); err != nil {
		t.Fatalf("persist: %v", err)
	}
	found, err := s.Hydrate(context.Background(), alice)
	if err != nil || !found {
		t.Fatalf("Hydrate = (%v, %v), want (true, nil)", found, err)
	}
	got := store.Snapshot()
	if core.GrandTotals(got).Net.Cents != 38000 {
		t.Fatalf("hydrated net = %s, want 380.00", core.GrandTotals(got).Net)
	}
	wantBody, _ := core.EncodeSnapshot(want)
	gotBody, _ := core.EncodeSnapshot(got)
	if !bytes.Equal(wantBody, gotBody) {
		t.Fatalf("round trip mismatch:\n%s\n%s", wantBody, gotBody)
	}
	if v := testutil.ToFloat64(m.hydrates.WithLabelValues(ResultFound)); v != 1 {
		t.Errorf("found hydrates = %v, want 1", v)
	}
}

func TestHydrateErrors(t *testing.T) {
	corrupt := memory.New()
	if err := corrupt.Set(context.Background(), "alice", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		docs documents.Store
	}{
		{"transport", failingDocs{err: errors.New("connection refused")}},
		{"decode", corrupt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, store, m := newTestSyncer(t, tc.docs)
			found, err := s.Hydrate(context.Background(), alice)
			if found || !errors.Is(err, core.ErrRemoteUnavailable) {
				t.Fatalf("Hydrate = (%v, %v), want ErrRemoteUnavailable", found, err)
			}
			if store.Snapshot().Len() != 0 {
				t.Fatalf("failed hydrate populated the store")
			}
			if v := testutil.ToFloat64(m.hydrates.WithLabelValues(ResultError)); v != 1 {
				t.Errorf("error hydrates = %v, want 1", v)
			}
		})
	}
}

func TestHydrateRequiresIdentity(t *testing.T) {
	s, _, _ := newTestSyncer(t, memory.New())
	if _, err := s.Hydrate(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil identity")
	}
}

func TestPersistIsIdempotent(t *testing.T) {
	docs := memory.New()
	s, _, m := newTestSyncer(t, docs)
	snap := acmeSnapshot()

	var bodies [][]byte
	for i := 0; i < 2; i++ {
		if err := s.Persist(context.Background(), alice, snap); err != nil {
			t.Fatalf("persist %d: %v", i, err)
		}
		b, err := docs.Get(context.Background(), "alice")
		if err != nil {
			t.Fatal(err)
		}
		bodies = append(bodies, b)
	}
	if !bytes.Equal(bodies[0], bodies[1]) {
		t.Fatalf("persist is not deterministic:\n%s\n%s", bodies[0], bodies[1])
	}
	if v := testutil.ToFloat64(m.persists.WithLabelValues(ResultSuccess)); v != 2 {
		t.Errorf("successful persists = %v, want 2", v)
	}
}

func TestPersistWithoutIdentityIsNoop(t *testing.T) {
	docs := memory.New()
	s, _, _ := newTestSyncer(t, docs)
	for _, id := range []*core.Identity{nil, {ID: "  "}} {
		if err := s.Persist(context.Background(), id, acmeSnapshot()); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}
	if docs.Len() != 0 {
		t.Fatalf("expected no documents, got %d", docs.Len())
	}
}

func TestPersistFailureWrapsRemoteUnavailable(t *testing.T) {
	s, _, m := newTestSyncer(t, failingDocs{err: errors.New("quota exceeded")})
	err := s.Persist(context.Background(), alice, acmeSnapshot())
	if !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("Persist = %v, want ErrRemoteUnavailable", err)
	}
	if v := testutil.ToFloat64(m.persists.WithLabelValues(ResultError)); v != 1 {
		t.Errorf("failed persists = %v, want 1", v)
	}
}

func TestBoundMutationsArePersisted(t *testing.T) {
	docs := memory.New()
	s, store, _ := newTestSyncer(t, docs)
	ctx := context.Background()

	if _, err := s.Hydrate(ctx, alice); err != nil {
		t.Fatal(err)
	}
	s.Bind(ctx, alice)
	if s.Key() != "alice" {
		t.Fatalf("bound key = %q, want alice", s.Key())
	}
	if docs.Writes("alice") != 0 {
		t.Fatalf("hydrate must not write back")
	}

	c, err := store.AddCompany(core.CompanyInput{Name: "Acme", BaseRate: core.Money{Cents: 5000}, DeductionPercent: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddWorkRecord(core.WorkRecordInput{CompanyID: c.ID, Hours: 10}); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	body, err := docs.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("document not written: %v", err)
	}
	snap, err := core.DecodeSnapshot(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Companies) != 1 || len(snap.WorkRecords) != 1 {
		t.Fatalf("unexpected document %s", body)
	}
	if docs.Writes("alice") != 1 {
		t.Errorf("expected the two edits to coalesce into one write, got %d", docs.Writes("alice"))
	}
	if !s.Status().Synced() {
		t.Errorf("expected synced status, got %+v", s.Status())
	}
}

func TestReplaceIsNotPersisted(t *testing.T) {
	docs := memory.New()
	s, store, _ := newTestSyncer(t, docs)
	s.Bind(context.Background(), alice)

	store.ReplaceAll(acmeSnapshot())
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if docs.Len() != 0 {
		t.Fatalf("replace was written back")
	}
	s.Unbind()
	if s.Key() != "" {
		t.Fatalf("key after unbind = %q", s.Key())
	}
}

func TestSignOutDuringHydrateDiscardsResult(t *testing.T) {
	docs := newGatedDocs()
	if err := docs.Store.Set(context.Background(), "alice", mustEncode(t, acmeSnapshot())); err != nil {
		t.Fatal(err)
	}
	s, store, m := newTestSyncer(t, docs)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Hydrate(context.Background(), alice)
		errc <- err
	}()
	<-docs.started
	s.Unbind()
	store.ReplaceAll(core.EmptySnapshot())
	close(docs.release)

	if err := <-errc; !errors.Is(err, ErrStaleSession) {
		t.Fatalf("Hydrate = %v, want ErrStaleSession", err)
	}
	if store.Snapshot().Len() != 0 {
		t.Fatalf("stale hydrate repopulated the store")
	}
	if v := testutil.ToFloat64(m.hydrates.WithLabelValues(ResultStale)); v != 1 {
		t.Errorf("stale hydrates = %v, want 1", v)
	}
}

func TestSignOutDuringPersistNeverWritesOtherIdentity(t *testing.T) {
	docs := newGatedDocs()
	s, store, _ := newTestSyncer(t, docs)
	ctx := context.Background()

	s.Bind(ctx, alice)
	if _, err := store.AddExpense(core.AmountInput{Amount: core.Money{Cents: 100}, Description: "alice"}); err != nil {
		t.Fatal(err)
	}
	if key := <-docs.started; key != "alice" {
		t.Fatalf("first write targeted %q", key)
	}

	// sign out, then bob signs in while alice's write is still in flight
	s.Unbind()
	store.ReplaceAll(core.EmptySnapshot())
	s.Bind(ctx, bob)
	if _, err := store.AddExpense(core.AmountInput{Amount: core.Money{Cents: 200}, Description: "bob"}); err != nil {
		t.Fatal(err)
	}

	close(docs.release)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	body, err := docs.Store.Get(ctx, "bob")
	if err != nil {
		t.Fatalf("bob's document missing: %v", err)
	}
	snap, err := core.DecodeSnapshot(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Expenses) != 1 || snap.Expenses[0].Description != "bob" {
		t.Fatalf("bob's document carries foreign data: %s", body)
	}
	if b, err := docs.Store.Get(ctx, "alice"); err == nil && bytes.Contains(b, []byte(`"bob"`)) {
		t.Fatalf("alice's document received bob's data: %s", b)
	}
}

func mustEncode(t *testing.T, s core.Snapshot) []byte {
	t.Helper()
	b, err := core.EncodeSnapshot(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
