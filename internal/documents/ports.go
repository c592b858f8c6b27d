// Package documents defines the remote document store the sync engine writes
// to. There is exactly one document per user, keyed by the identity id.
package documents

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// Ports for outbound adapters.
type (
	Reader interface {
		Get(ctx context.Context, key string) ([]byte, error)
	}

	Writer interface {
		// Set overwrites the whole document.
		Set(ctx context.Context, key string, body []byte) error
	}

	Store interface {
		Reader
		Writer
	}
)
