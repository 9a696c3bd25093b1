package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps every collection in a single documents table.
type SQLiteStore struct {
	db     *sql.DB
	notify *notifier
}

// OpenSQLite creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode so operator sessions can read while the watcher writes
//   - 5-second busy timeout for lock contention between processes
//
// Safe to call repeatedly against the same file.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, notify: newNotifier()}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns a single document.
func (s *SQLiteStore) Get(ctx context.Context, c Collection, key string) ([]byte, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND key = ?`,
		string(c), key,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c, key, err)
	}
	return []byte(body), nil
}

// GetAll returns every document in the collection ordered by key.
func (s *SQLiteStore) GetAll(ctx context.Context, c Collection) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, body FROM documents WHERE collection = ? ORDER BY key`,
		string(c),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	return scanDocuments(rows)
}

// QueryByField returns documents whose top-level field equals value.
func (s *SQLiteStore) QueryByField(ctx context.Context, c Collection, field, value string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, body FROM documents
		WHERE collection = ? AND json_extract(body, '$.' || ?) = ?
		ORDER BY key
	`, string(c), field, value)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", c, field, err)
	}
	return scanDocuments(rows)
}

// Set upserts a document.
func (s *SQLiteStore) Set(ctx context.Context, c Collection, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, string(c), key, string(data), timestamp())
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", c, key, err)
	}

	s.notify.publish(ChangeEvent{Collection: c, Key: key, Op: OpSet})
	return nil
}

// Update merges fields into an existing document inside a single-key transaction.
func (s *SQLiteStore) Update(ctx context.Context, c Collection, key string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s/%s: begin tx: %w", c, key, err)
	}
	defer tx.Rollback() // No-op if committed

	var body string
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND key = ?`,
		string(c), key,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", c, key, err)
	}

	merged, err := mergeFields([]byte(body), fields)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", c, key, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND key = ?`,
		string(merged), timestamp(), string(c), key,
	); err != nil {
		return fmt.Errorf("update %s/%s: %w", c, key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update %s/%s: commit: %w", c, key, err)
	}

	s.notify.publish(ChangeEvent{Collection: c, Key: key, Op: OpUpdate})
	return nil
}

// Remove deletes a document.
func (s *SQLiteStore) Remove(ctx context.Context, c Collection, key string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`,
		string(c), key,
	)
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", c, key, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	s.notify.publish(ChangeEvent{Collection: c, Key: key, Op: OpRemove})
	return nil
}

// Subscribe registers a change listener. Only writes made through this
// process are observed; other processes are picked up by periodic resync.
func (s *SQLiteStore) Subscribe(c Collection, fn func(ChangeEvent)) func() {
	return s.notify.subscribe(c, fn)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, Document{Key: key, Data: []byte(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
