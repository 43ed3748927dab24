package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"spendbook/internal/docstore"
)

// SeedFile is the optional seed read by NewFromFiles, relative to the data
// directory. It holds a JSON array of documents for the expenses collection.
const SeedFile = "seed_expenses.json"

// Store keeps documents in process memory, in insertion order.
type Store struct {
	mu          sync.Mutex
	collections map[string][]docstore.Document
	newID       func() string
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: map[string][]docstore.Document{},
		newID:       uuid.NewString,
	}
}

// NewFromFiles returns a store seeded from base/seed_expenses.json when the
// file exists. A missing or malformed seed leaves the store empty.
func NewFromFiles(base string) *Store {
	s := New()
	for _, f := range readSeed(filepath.Join(base, SeedFile)) {
		_, _ = s.Create(context.Background(), "expenses", f)
	}
	return s
}

// List returns copies of the documents in insertion order.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, docstore.Unavailable("list", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	out := make([]docstore.Document, len(docs))
	for i, d := range docs {
		out[i] = docstore.Document{ID: d.ID, Fields: d.Fields.Clone()}
	}
	return out, nil
}

// Create stores a copy of fields under a fresh id.
func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", docstore.Unavailable("create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.collections[collection] = append(s.collections[collection], docstore.Document{ID: id, Fields: fields.Clone()})
	return id, nil
}

// Delete removes the document if present.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return docstore.Unavailable("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, d := range docs {
		if d.ID == id {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return nil
}

func readSeed(path string) []docstore.Fields {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out []docstore.Fields
	if err := dec.Decode(&out); err != nil {
		slog.Warn("Ignoring malformed seed file", "path", path, "error", err)
		return nil
	}
	return out
}
