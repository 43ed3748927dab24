// Package docstore defines the document store port shared by every
// persistence backend.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrStoreUnavailable wraps every failure reported by a Store.
var ErrStoreUnavailable = errors.New("store unavailable")

type (
	// Fields is a schemaless document body. Values are JSON-compatible:
	// string, float64, int64, bool, nil, time.Time, json.Number.
	Fields map[string]any

	// Document is a stored document and its store-assigned id.
	Document struct {
		ID     string
		Fields Fields
	}

	// Store is the remote document store. Implementations assign ids on
	// Create and treat Delete of a missing id as a no-op.
	Store interface {
		// List returns every document of the collection in store order.
		List(ctx context.Context, collection string) ([]Document, error)
		// Create stores fields as a new document and returns its id.
		Create(ctx context.Context, collection string, fields Fields) (string, error)
		// Delete removes the document with the given id.
		Delete(ctx context.Context, collection, id string) error
	}
)

// Unavailable wraps err so that it matches ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
