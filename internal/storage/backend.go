// Package storage is the widget's sole gateway to durable storage. A Backend
// moves opaque bytes under string keys; the Adapter layered on top encodes and
// decodes JSON documents and turns missing or corrupt entries into "absent".
package storage

import (
	"context"
	"errors"
)

// Well-known keys. Each one is a complete document, overwritten on every write.
const (
	KeyMessages = "chatMessages"
	KeyVisitor  = "visitorData"
	KeyVisited  = "visitorHasVisited"
)

// ErrNotFound is returned by a Backend when a key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Backend is a byte-level key/value store. Implementations must be safe for
// concurrent use; Save replaces any previous value for the key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
