package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"worktracker/internal/core"
	"worktracker/internal/identity"
)

const secret = "0123456789abcdef0123456789abcdef"

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(secret, time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRejectsWeakSecret(t *testing.T) {
	if _, err := NewManager("short", time.Hour); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}

func TestGenerateValidate(t *testing.T) {
	m := newManager(t)
	tok, err := m.Generate(core.Identity{ID: "u1", Name: "Ada", AvatarURL: "https://example.com/a.png"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := m.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "u1" || claims.Name != "Ada" || claims.Picture != "https://example.com/a.png" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	m := newManager(t)
	good, err := m.Generate(core.Identity{ID: "u1"})
	if err != nil {
		t.Fatal(err)
	}

	other, _ := NewManager(strings.Repeat("x", 32), time.Hour)
	foreign, _ := other.Generate(core.Identity{ID: "u1"})

	expired := newManager(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Generate(core.Identity{ID: "u1"})

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "worktracker"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"wrong secret", foreign, ErrInvalidToken},
		{"expired", old, ErrInvalidToken},
		{"alg none", none, ErrInvalidToken},
		{"tampered", good[:len(good)-2] + "xx", ErrInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Validate(tc.token); !errors.Is(err, tc.want) {
				t.Fatalf("Validate = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGenerateRequiresSubject(t *testing.T) {
	if _, err := newManager(t).Generate(core.Identity{Name: "nobody"}); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestProviderSignInOut(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	tok, err := m.Generate(core.Identity{ID: "u1", Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	p := NewProvider(m, func(context.Context) (string, error) { return tok, nil })

	var seen []*core.Identity
	p.Subscribe(func(id *core.Identity) { seen = append(seen, id) })

	id, err := p.SignIn(ctx)
	if err != nil || id.ID != "u1" || id.Name != "Ada" {
		t.Fatalf("SignIn = %+v, %v", id, err)
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if len(seen) != 2 || seen[0] == nil || seen[1] != nil {
		t.Fatalf("unexpected events %v", seen)
	}

	// the revoked token cannot sign in again
	if _, err := p.SignIn(ctx); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reusing revoked token = %v, want ErrInvalidToken", err)
	}
	if err := p.SignOut(ctx); !errors.Is(err, identity.ErrNotSignedIn) {
		t.Fatalf("second SignOut = %v, want ErrNotSignedIn", err)
	}
}
