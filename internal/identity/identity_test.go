package identity

import (
	"context"
	"sync"
	"testing"

	"worktracker/internal/core"
)

type events struct {
	mu  sync.Mutex
	got []string
}

func (e *events) record(id *core.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id == nil {
		e.got = append(e.got, "<nil>")
		return
	}
	e.got = append(e.got, id.ID)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.got...)
}

func TestNotifierReplaysLatest(t *testing.T) {
	var n Notifier
	early := &events{}
	n.Subscribe(early.record)
	if len(early.list()) != 0 {
		t.Fatalf("nothing published yet, got %v", early.list())
	}

	n.Publish(&core.Identity{ID: "a"})
	n.Publish(nil)
	n.Publish(&core.Identity{ID: "b"})

	late := &events{}
	n.Subscribe(late.record)

	if got := early.list(); len(got) != 3 || got[0] != "a" || got[1] != "<nil>" || got[2] != "b" {
		t.Errorf("early subscriber got %v", got)
	}
	if got := late.list(); len(got) != 1 || got[0] != "b" {
		t.Errorf("late subscriber got %v", got)
	}
}

func TestNotifierUnsubscribe(t *testing.T) {
	var n Notifier
	e := &events{}
	unsub := n.Subscribe(e.record)
	n.Publish(&core.Identity{ID: "a"})
	unsub()
	unsub()
	n.Publish(&core.Identity{ID: "b"})
	if got := e.list(); len(got) != 1 {
		t.Fatalf("expected one delivery, got %v", got)
	}
}

func TestNotifierCopiesIdentity(t *testing.T) {
	var n Notifier
	id := &core.Identity{ID: "a", Name: "Ada"}
	n.Publish(id)
	id.Name = "changed"
	cur, ok := n.Current()
	if !ok || cur.Name != "Ada" {
		t.Fatalf("Current() = %+v, %v", cur, ok)
	}
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := NewLocal(core.Identity{ID: "me", Name: "Me"}, false)
	e := &events{}
	p.Subscribe(e.record)

	id, err := p.SignIn(ctx)
	if err != nil || id.ID != "me" {
		t.Fatalf("SignIn = %+v, %v", id, err)
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if got := e.list(); len(got) != 3 || got[0] != "<nil>" || got[1] != "me" || got[2] != "<nil>" {
		t.Fatalf("unexpected events %v", got)
	}
}
