package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"inkwell/internal/config"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrNotFound is returned when no record exists for a document id.
var ErrNotFound = errors.New("metadata: document not found")

// Store manages document record persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the document database and applies the
// schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "documents.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) applySchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
    doc_id                TEXT PRIMARY KEY,
    user_id               INTEGER NOT NULL DEFAULT 0,
    filename              TEXT NOT NULL,
    title                 TEXT NOT NULL DEFAULT '',
    page_count            INTEGER NOT NULL DEFAULT 0,
    status                TEXT NOT NULL,
    source_path           TEXT NOT NULL DEFAULT '',
    doctags_path          TEXT NOT NULL DEFAULT '',
    markdown_path         TEXT NOT NULL DEFAULT '',
    json_path             TEXT NOT NULL DEFAULT '',
    task_id               TEXT NOT NULL DEFAULT '',
    file_size             INTEGER,
    success_count         INTEGER NOT NULL DEFAULT 0,
    partial_success_count INTEGER NOT NULL DEFAULT 0,
    failure_count         INTEGER NOT NULL DEFAULT 0,
    processing_seconds    REAL NOT NULL DEFAULT 0,
    ingest_seconds        REAL NOT NULL DEFAULT 0,
    ingested_at           TEXT NOT NULL DEFAULT '',
    created_at            TEXT NOT NULL,
    updated_at            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);
CREATE INDEX IF NOT EXISTS idx_documents_task ON documents(task_id);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveBatch upserts a batch of records inside one transaction, so a task
// that produced several documents lands atomically.
func (s *Store) SaveBatch(ctx context.Context, records []DocumentRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin batch: %w", err)
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		const query = `
INSERT INTO documents (
    doc_id, user_id, filename, title, page_count, status, source_path,
    doctags_path, markdown_path, json_path, task_id, file_size,
    success_count, partial_success_count, failure_count,
    processing_seconds, ingest_seconds, ingested_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET
    user_id = excluded.user_id,
    filename = excluded.filename,
    title = excluded.title,
    page_count = excluded.page_count,
    status = excluded.status,
    source_path = excluded.source_path,
    doctags_path = excluded.doctags_path,
    markdown_path = excluded.markdown_path,
    json_path = excluded.json_path,
    task_id = excluded.task_id,
    file_size = excluded.file_size,
    success_count = excluded.success_count,
    partial_success_count = excluded.partial_success_count,
    failure_count = excluded.failure_count,
    processing_seconds = excluded.processing_seconds,
    ingest_seconds = excluded.ingest_seconds,
    ingested_at = excluded.ingested_at,
    updated_at = excluded.updated_at`
		for _, record := range records {
			ingested := ""
			if !record.IngestedAt.IsZero() {
				ingested = record.IngestedAt.UTC().Format(time.RFC3339Nano)
			}
			created := now
			if !record.CreatedAt.IsZero() {
				created = record.CreatedAt.UTC().Format(time.RFC3339Nano)
			}
			var fileSize sql.NullInt64
			if record.FileSize != nil {
				fileSize = sql.NullInt64{Int64: *record.FileSize, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, query,
				record.DocID, record.UserID, record.Filename, record.Title,
				record.PageCount, record.Status, record.SourcePath,
				record.DoctagsPath, record.MarkdownPath, record.JSONPath,
				record.TaskID, fileSize, record.SucceededCount,
				record.PartialCount, record.FailedCount,
				record.ProcessingSeconds, record.IngestSeconds,
				ingested, created, now,
			); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("save document %s: %w", record.DocID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		return nil
	})
}

// GetByDocID fetches one record by document id.
func (s *Store) GetByDocID(ctx context.Context, docID string) (*DocumentRecord, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM documents WHERE doc_id = ?", docID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", docID, err)
	}
	return record, nil
}

// List returns records ordered by most recent update. A non-empty status
// filters the result; limit <= 0 returns everything.
func (s *Store) List(ctx context.Context, status string, limit int) ([]DocumentRecord, error) {
	ctx = ensureContext(ctx)
	query := selectColumns + " FROM documents"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY updated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var records []DocumentRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return records, nil
}

// UpdateStatus transitions one document to a new status.
func (s *Store) UpdateStatus(ctx context.Context, docID, status string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.db.ExecContext(ctx,
			"UPDATE documents SET status = ?, updated_at = ? WHERE doc_id = ?",
			status, now, docID)
		if err != nil {
			return fmt.Errorf("update document %s: %w", docID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update document %s: %w", docID, err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

const selectColumns = `SELECT doc_id, user_id, filename, title, page_count, status, source_path,
    doctags_path, markdown_path, json_path, task_id, file_size,
    success_count, partial_success_count, failure_count,
    processing_seconds, ingest_seconds, ingested_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*DocumentRecord, error) {
	var record DocumentRecord
	var fileSize sql.NullInt64
	var ingested, created, updated string
	if err := row.Scan(
		&record.DocID, &record.UserID, &record.Filename, &record.Title,
		&record.PageCount, &record.Status, &record.SourcePath,
		&record.DoctagsPath, &record.MarkdownPath, &record.JSONPath,
		&record.TaskID, &fileSize, &record.SucceededCount,
		&record.PartialCount, &record.FailedCount,
		&record.ProcessingSeconds, &record.IngestSeconds,
		&ingested, &created, &updated,
	); err != nil {
		return nil, err
	}
	if fileSize.Valid {
		record.FileSize = &fileSize.Int64
	}
	record.IngestedAt = parseTimestamp(ingested)
	record.CreatedAt = parseTimestamp(created)
	record.UpdatedAt = parseTimestamp(updated)
	return &record, nil
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
