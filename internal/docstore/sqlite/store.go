// Package sqlite stores documents as JSON rows in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"spendbook/internal/docstore"
)

type Store struct {
	db    *sql.DB
	newID func() string
}

var _ docstore.Store = (*Store)(nil)

// Open opens (creating if needed) the database at dbPath and applies
// migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, newID: uuid.NewString}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// List returns the collection in insertion order.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, docstore.Unavailable("list documents", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, docstore.Unavailable("scan document", err)
		}
		fields, err := docstore.DecodeJSON(raw)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable document", "id", id, "error", err)
			fields = docstore.Fields{}
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, docstore.Unavailable("iterate documents", err)
	}
	return docs, nil
}

// Create inserts fields under a fresh id.
func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if fields == nil {
		fields = docstore.Fields{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}

	id := s.newID()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection, fields) VALUES (?, ?, ?)`, id, collection, string(raw)); err != nil {
		return "", docstore.Unavailable("insert document", err)
	}

	slog.DebugContext(ctx, "Document saved to SQLite", "id", id, "collection", collection)
	return id, nil
}

// Delete removes the document; a missing id is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return docstore.Unavailable("delete document", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.DebugContext(ctx, "Delete matched no document", "id", id, "collection", collection)
	}
	return nil
}
