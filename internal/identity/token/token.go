// Package token is a self-hosted identity provider backed by signed session
// tokens (HS256 JWTs).
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"worktracker/internal/core"
	"worktracker/internal/identity"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("session token required")
	ErrWeakSecret   = errors.New("session token secret must be at least 32 bytes")
)

const minSecretLen = 32

// Claims carries the profile shown next to the sign-out button.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates session tokens.
type Manager struct {
	secretKey     []byte
	tokenDuration time.Duration
	issuer        string
	now           func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> expiry
}

func NewManager(secretKey string, tokenDuration time.Duration) (*Manager, error) {
	if len(secretKey) < minSecretLen {
		return nil, ErrWeakSecret
	}
	return &Manager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		issuer:        "worktracker",
		now:           time.Now,
		revoked:       make(map[string]time.Time),
	}, nil
}

// Generate signs a token for id.
func (m *Manager) Generate(id core.Identity) (string, error) {
	if strings.TrimSpace(id.ID) == "" {
		return "", fmt.Errorf("generate token: empty subject")
	}
	now := m.now()
	claims := &Claims{
		Name:    id.Name,
		Picture: id.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if m.isRevoked(claims.ID) {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims, nil
}

// Revoke rejects the token for the rest of its lifetime.
func (m *Manager) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for jti, exp := range m.revoked {
		if now.After(exp) {
			delete(m.revoked, jti)
		}
	}
	exp := now.Add(m.tokenDuration)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	m.revoked[claims.ID] = exp
}

func (m *Manager) isRevoked(jti string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok
}

// Source yields the bearer token presented by the host, e.g. read from a
// cookie or a file.
type Source func(ctx context.Context) (string, error)

// Provider implements identity.Provider on top of a Manager.
type Provider struct {
	identity.Notifier

	manager *Manager
	source  Source

	mu      sync.Mutex
	current *Claims
}

func NewProvider(manager *Manager, source Source) *Provider {
	return &Provider{manager: manager, source: source}
}

// SignIn validates the presented token and publishes its identity.
func (p *Provider) SignIn(ctx context.Context) (core.Identity, error) {
	if p.source == nil {
		return core.Identity{}, ErrMissingToken
	}
	raw, err := p.source(ctx)
	if err != nil {
		return core.Identity{}, fmt.Errorf("read session token: %w", err)
	}
	claims, err := p.manager.Validate(raw)
	if err != nil {
		return core.Identity{}, err
	}
	id := core.Identity{ID: claims.Subject, Name: claims.Name, AvatarURL: claims.Picture}

	p.mu.Lock()
	p.current = claims
	p.mu.Unlock()

	p.Publish(&id)
	return id, nil
}

// SignOut revokes the current token and publishes the signed-out state.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	claims := p.current
	p.current = nil
	p.mu.Unlock()

	p.manager.Revoke(claims)
	p.Publish(nil)
	if claims == nil {
		return identity.ErrNotSignedIn
	}
	return nil
}
