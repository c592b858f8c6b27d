// Package adapters composes storage and messaging into a documents.Store.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"worktracker/internal/documents"
)

type (
	// DocumentRepository is the local, durable side of the store.
	DocumentRepository interface {
		Get(ctx context.Context, key string) ([]byte, error)
		SaveDocument(ctx context.Context, key string, body []byte) (version int64, changed bool, err error)
		Close() error
	}

	// Publisher announces stored versions to the mirror worker.
	Publisher interface {
		PublishDocumentSync(ctx context.Context, userID string, version int64) error
		Close() error
	}
)

// QueuedDocumentStore writes to SQLite first and then tells the mirror
// worker about the new version. Publishing is best effort: a document that
// was saved but never announced is picked up by the worker's pending scan.
type QueuedDocumentStore struct {
	repo      DocumentRepository
	publisher Publisher
}

var _ documents.Store = (*QueuedDocumentStore)(nil)

// NewQueuedDocumentStore accepts a nil publisher, in which case documents
// only reach the mirror through the pending scan.
func NewQueuedDocumentStore(repo DocumentRepository, publisher Publisher) *QueuedDocumentStore {
	return &QueuedDocumentStore{repo: repo, publisher: publisher}
}

func (s *QueuedDocumentStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.repo.Get(ctx, key)
}

func (s *QueuedDocumentStore) Set(ctx context.Context, key string, body []byte) error {
	version, changed, err := s.repo.SaveDocument(ctx, key, body)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if !changed {
		return nil
	}
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping sync message", "user_id", key)
		return nil
	}
	if err := s.publisher.PublishDocumentSync(ctx, key, version); err != nil {
		// the document is stored; the pending scan will mirror it
		slog.WarnContext(ctx, "Failed to publish document sync message",
			"user_id", key,
			"version", version,
			"error", err)
	}
	return nil
}

func (s *QueuedDocumentStore) Close() error {
	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
