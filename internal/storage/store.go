package storage

import (
	"context"
	"fmt"

	"wedding-ops/internal/models"
)

// Collection names a logical group of documents
type Collection string

const (
	RSVPs  Collection = "rsvps"
	Guests Collection = "guests"
	Zones  Collection = "zones"
	Tables Collection = "tables"
)

// ErrNotFound is returned when a key does not exist in a collection
var ErrNotFound = fmt.Errorf("storage: %w", models.ErrNotFound)

// Op is the kind of write that produced a change event
type Op string

const (
	OpSet    Op = "set"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// ChangeEvent describes a committed write
type ChangeEvent struct {
	Collection Collection
	Key        string
	Op         Op
}

// Document is a raw JSON value and its key
type Document struct {
	Key  string
	Data []byte
}

// Store is a key-value document store. Writes are atomic per key only;
// there are no transactions spanning several keys.
type Store interface {
	Get(ctx context.Context, c Collection, key string) ([]byte, error)
	// GetAll returns every document of the collection ordered by key.
	GetAll(ctx context.Context, c Collection) ([]Document, error)
	Set(ctx context.Context, c Collection, key string, data []byte) error
	// Update merges top-level fields into an existing document. A nil value removes the field.
	Update(ctx context.Context, c Collection, key string, fields map[string]any) error
	Remove(ctx context.Context, c Collection, key string) error
	// QueryByField returns documents whose top-level string field equals value, ordered by key.
	QueryByField(ctx context.Context, c Collection, field, value string) ([]Document, error)
	// Subscribe registers fn for change events on c. Events are delivered
	// synchronously after the write commits; fn must not block.
	Subscribe(c Collection, fn func(ChangeEvent)) (cancel func())
	Close() error
}
