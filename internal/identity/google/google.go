// Package google signs the user in with a Google account. The OAuth token is
// produced once by cmd/oauth-init; this provider loads it, reads the profile
// from the userinfo API and revokes the token on sign-out.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"worktracker/internal/core"
	"worktracker/internal/googleauth"
	"worktracker/internal/identity"
)

const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// Scopes needed to read the signed-in user's profile.
var Scopes = []string{oauth2v2.UserinfoProfileScope, oauth2v2.UserinfoEmailScope}

type Option func(*Provider)

// WithTokenSource skips loading credentials and uses ts directly.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(p *Provider) { p.source = ts }
}

// WithEndpoint overrides the userinfo API base URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

func WithRevokeURL(u string) Option {
	return func(p *Provider) { p.revokeURL = u }
}

// WithHTTPClient sets the transport used for every Google call.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements identity.Provider.
type Provider struct {
	identity.Notifier

	creds      googleauth.Credentials
	source     oauth2.TokenSource
	endpoint   string
	revokeURL  string
	httpClient *http.Client

	mu sync.Mutex
	ts oauth2.TokenSource
}

func New(creds googleauth.Credentials, opts ...Option) *Provider {
	p := &Provider{
		creds:      creds,
		revokeURL:  DefaultRevokeURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SignIn loads the stored token, fetches the profile and publishes the
// identity.
func (p *Provider) SignIn(ctx context.Context) (core.Identity, error) {
	ts := p.source
	if ts == nil {
		var err error
		ts, _, err = googleauth.TokenSource(ctx, p.creds, Scopes...)
		if err != nil {
			return core.Identity{}, fmt.Errorf("load google token: %w", err)
		}
	}

	id, err := p.fetchProfile(ctx, ts)
	if err != nil {
		return core.Identity{}, err
	}

	p.mu.Lock()
	p.ts = ts
	p.mu.Unlock()

	slog.InfoContext(ctx, "Signed in with Google", "user_id", id.ID)
	p.Publish(&id)
	return id, nil
}

func (p *Provider) fetchProfile(ctx context.Context, ts oauth2.TokenSource) (core.Identity, error) {
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient), ts)
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		return core.Identity{}, fmt.Errorf("create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return core.Identity{}, fmt.Errorf("get userinfo: %w", err)
	}
	if strings.TrimSpace(info.Id) == "" {
		return core.Identity{}, fmt.Errorf("get userinfo: empty user id")
	}
	return core.Identity{ID: info.Id, Name: info.Name, AvatarURL: info.Picture}, nil
}

// SignOut revokes the current token. The identity is cleared even when the
// revoke call fails; the error is still returned.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	ts := p.ts
	p.ts = nil
	p.mu.Unlock()

	defer p.Publish(nil)
	if ts == nil {
		return nil
	}
	tok, err := ts.Token()
	if err != nil {
		return fmt.Errorf("read token for revoke: %w", err)
	}
	return p.revoke(ctx, tok)
}

func (p *Provider) revoke(ctx context.Context, tok *oauth2.Token) error {
	// revoking the refresh token also invalidates its access tokens
	value := tok.RefreshToken
	if value == "" {
		value = tok.AccessToken
	}
	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: unexpected status %s", resp.Status)
	}
	return nil
}
