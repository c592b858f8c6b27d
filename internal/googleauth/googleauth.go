// Package googleauth turns configured Google credentials into API client
// options. Service account credentials win over an OAuth client + token pair.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
)

// ErrNoCredentials is returned when neither a service account nor an OAuth
// client and token are configured.
var ErrNoCredentials = errors.New("missing google credentials (set a service account or an OAuth client and token)")

type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

func (c Credentials) HasServiceAccount() bool {
	return strings.TrimSpace(c.ServiceAccountJSON) != "" || strings.TrimSpace(c.ServiceAccountFile) != ""
}

func (c Credentials) HasOAuth() bool {
	hasClient := strings.TrimSpace(c.OAuthClientJSON) != "" || strings.TrimSpace(c.OAuthClientFile) != ""
	hasToken := strings.TrimSpace(c.OAuthTokenJSON) != "" || strings.TrimSpace(c.OAuthTokenFile) != ""
	return hasClient && hasToken
}

// ClientOptions returns options for google.golang.org/api service constructors.
func ClientOptions(ctx context.Context, creds Credentials, scopes ...string) ([]goption.ClientOption, error) {
	if creds.HasServiceAccount() {
		b, err := inlineOrFile(creds.ServiceAccountJSON, creds.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials", "credentials_size", len(b))
		return []goption.ClientOption{
			goption.WithCredentialsJSON(b),
			goption.WithScopes(scopes...),
		}, nil
	}

	if creds.HasOAuth() {
		ts, _, err := TokenSource(ctx, creds, scopes...)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user credentials")
		return []goption.ClientOption{goption.WithTokenSource(ts)}, nil
	}

	return nil, ErrNoCredentials
}

// OAuthConfig parses the OAuth client file for the given scopes.
func OAuthConfig(creds Credentials, scopes ...string) (*oauth2.Config, error) {
	b, err := inlineOrFile(creds.OAuthClientJSON, creds.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	return cfg, nil
}

// TokenSource returns a refreshing token source for the stored user token,
// plus the token as it was loaded.
func TokenSource(ctx context.Context, creds Credentials, scopes ...string) (oauth2.TokenSource, *oauth2.Token, error) {
	cfg, err := OAuthConfig(creds, scopes...)
	if err != nil {
		return nil, nil, err
	}
	b, err := inlineOrFile(creds.OAuthTokenJSON, creds.OAuthTokenFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), &tok, nil
}

// SaveToken writes tok to path with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func inlineOrFile(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrNoCredentials
	}
	return os.ReadFile(path)
}
