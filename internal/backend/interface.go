package backend

import (
	"context"
	"time"

	"worktracker/internal/documents"
	"worktracker/internal/googleauth"
	"worktracker/internal/identity"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the document store and optional cleanup function
type BackendResult struct {
	Store   documents.Store
	Cleanup CleanupFunc
}

// Close runs Cleanup if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates document stores and identity providers from configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateIdentity(ctx context.Context, config Config) (identity.Provider, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Redis specific
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Google Sheets specific
	GoogleSpreadsheetID string
	GoogleSheetName     string
	Google              googleauth.Credentials
	RowCacheSweep       time.Duration

	// Identity
	Identity           IdentityType
	LocalUserID        string
	LocalUserName      string
	SessionTokenSecret string
	SessionTokenFile   string
	SessionTokenTTL    time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
	SheetsBackend BackendType = "sheets"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RedisBackend, SheetsBackend:
		return true
	default:
		return false
	}
}

// IdentityType selects the identity provider.
type IdentityType string

const (
	LocalIdentity  IdentityType = "local"
	GoogleIdentity IdentityType = "google"
	TokenIdentity  IdentityType = "token"
)

func (it IdentityType) IsValid() bool {
	switch it {
	case LocalIdentity, GoogleIdentity, TokenIdentity:
		return true
	default:
		return false
	}
}
