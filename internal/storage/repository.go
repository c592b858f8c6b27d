package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"worktracker/internal/documents"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Sync states of a stored document.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// SQLiteRepository stores one document per user and tracks whether the
// latest version has been mirrored.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ documents.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the app and its own pool
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db), now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// StoredDocument is a document row with its sync bookkeeping.
type StoredDocument struct {
	UserID     string
	Body       []byte
	Version    int64
	SyncStatus string
	SyncError  string
	UpdatedAt  time.Time
	SyncedAt   time.Time
}

// PendingDocument is the minimum the worker needs to schedule a mirror.
type PendingDocument struct {
	UserID    string
	Version   int64
	UpdatedAt time.Time
}

// Get implements documents.Reader.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	d, err := r.GetDocument(ctx, key)
	if err != nil {
		return nil, err
	}
	return d.Body, nil
}

// Set implements documents.Writer.
func (r *SQLiteRepository) Set(ctx context.Context, key string, body []byte) error {
	_, _, err := r.SaveDocument(ctx, key, body)
	return err
}

// SaveDocument writes body and returns the stored version. changed is false
// when the body was byte-identical to what was already stored; the version
// and sync state are then left untouched.
func (r *SQLiteRepository) SaveDocument(ctx context.Context, key string, body []byte) (version int64, changed bool, err error) {
	if key == "" {
		return 0, false, errors.New("save document: empty key")
	}
	version, err = r.queries.UpsertDocument(ctx, UpsertDocumentParams{
		UserID:    key,
		Body:      string(body),
		UpdatedAt: r.now().UTC().Format(timeLayout),
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		d, err := r.GetDocument(ctx, key)
		if err != nil {
			return 0, false, err
		}
		return d.Version, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("upsert document: %w", err)
	}

	slog.DebugContext(ctx, "Document saved to SQLite", "user_id", key, "version", version, "bytes", len(body))
	return version, true, nil
}

func (r *SQLiteRepository) GetDocument(ctx context.Context, key string) (*StoredDocument, error) {
	d, err := r.queries.GetDocument(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %q: %w", key, documents.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &StoredDocument{
		UserID:     d.UserID,
		Body:       []byte(d.Body),
		Version:    d.Version,
		SyncStatus: d.SyncStatus,
		SyncError:  d.SyncError.String,
		UpdatedAt:  parseTime(d.UpdatedAt),
		SyncedAt:   parseTime(d.SyncedAt.String),
	}, nil
}

// GetPendingDocuments returns documents not yet mirrored, oldest first.
// Documents whose last mirror failed are retried too.
func (r *SQLiteRepository) GetPendingDocuments(ctx context.Context, limit int) ([]PendingDocument, error) {
	rows, err := r.queries.GetPendingDocuments(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending documents: %w", err)
	}
	out := make([]PendingDocument, len(rows))
	for i, row := range rows {
		out[i] = PendingDocument{UserID: row.UserID, Version: row.Version, UpdatedAt: parseTime(row.UpdatedAt)}
	}
	return out, nil
}

// MarkSynced records a successful mirror of version. It reports false when
// the document has moved on to a newer version in the meantime.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, key string, version int64) (bool, error) {
	n, err := r.queries.MarkDocumentSynced(ctx, r.now().UTC().Format(timeLayout), key, version)
	if err != nil {
		return false, fmt.Errorf("mark document synced: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, key string, version int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.queries.MarkDocumentSyncError(ctx, msg, key, version); err != nil {
		return fmt.Errorf("mark document sync error: %w", err)
	}
	slog.WarnContext(ctx, "Document marked with sync error", "user_id", key, "version", version, "error", msg)
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
