package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Document struct {
	UserID     string
	Body       string
	Version    int64
	SyncStatus string
	SyncError  sql.NullString
	UpdatedAt  string
	SyncedAt   sql.NullString
}

const getDocument = `-- name: GetDocument :one
SELECT user_id, body, version, sync_status, sync_error, updated_at, synced_at
FROM documents WHERE user_id = ?`

func (q *Queries) GetDocument(ctx context.Context, userID string) (Document, error) {
	row := q.db.QueryRowContext(ctx, getDocument, userID)
	var d Document
	err := row.Scan(&d.UserID, &d.Body, &d.Version, &d.SyncStatus, &d.SyncError, &d.UpdatedAt, &d.SyncedAt)
	return d, err
}

// upsertDocument leaves the row alone when the body is unchanged, so no
// row is returned in that case.
const upsertDocument = `-- name: UpsertDocument :one
INSERT INTO documents (user_id, body, version, sync_status, updated_at)
VALUES (?, ?, 1, 'pending', ?)
ON CONFLICT (user_id) DO UPDATE SET
    body = excluded.body,
    version = documents.version + 1,
    sync_status = 'pending',
    sync_error = NULL,
    updated_at = excluded.updated_at
WHERE documents.body <> excluded.body
RETURNING version`

type UpsertDocumentParams struct {
	UserID    string
	Body      string
	UpdatedAt string
}

func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertDocument, arg.UserID, arg.Body, arg.UpdatedAt)
	var version int64
	err := row.Scan(&version)
	return version, err
}

const getPendingDocuments = `-- name: GetPendingDocuments :many
SELECT user_id, version, updated_at FROM documents
WHERE sync_status IN ('pending', 'error')
ORDER BY updated_at
LIMIT ?`

type GetPendingDocumentsRow struct {
	UserID    string
	Version   int64
	UpdatedAt string
}

func (q *Queries) GetPendingDocuments(ctx context.Context, limit int64) ([]GetPendingDocumentsRow, error) {
	rows, err := q.db.QueryContext(ctx, getPendingDocuments, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetPendingDocumentsRow
	for rows.Next() {
		var i GetPendingDocumentsRow
		if err := rows.Scan(&i.UserID, &i.Version, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markDocumentSynced = `-- name: MarkDocumentSynced :execrows
UPDATE documents SET sync_status = 'synced', sync_error = NULL, synced_at = ?
WHERE user_id = ? AND version = ?`

func (q *Queries) MarkDocumentSynced(ctx context.Context, syncedAt, userID string, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markDocumentSynced, syncedAt, userID, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markDocumentSyncError = `-- name: MarkDocumentSyncError :exec
UPDATE documents SET sync_status = 'error', sync_error = ?
WHERE user_id = ? AND version = ?`

func (q *Queries) MarkDocumentSyncError(ctx context.Context, msg, userID string, version int64) error {
	_, err := q.db.ExecContext(ctx, markDocumentSyncError, msg, userID, version)
	return err
}
