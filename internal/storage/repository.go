package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a document id does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrPermissionDenied is returned for writes without a signed-in identity.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrClosed is delivered on a feed whose store went away.
	ErrClosed = errors.New("store closed")
)

// Document is one stored record; Data is opaque to the store.
type Document struct {
	ID   string
	Data []byte
}

// Event is one push from a collection feed: either the full current set of
// documents in store order, or an error.
type Event struct {
	Docs []Document
	Err  error
}

// Store is the push-capable collection store the gallery talks to.
// This allows us to swap storage implementations (e.g., BadgerDB, a hosted
// document service) without changing the gallery.
type Store interface {
	// Subscribe opens a feed on the collection at path. The first event is the
	// current state; each later change produces another full-state event. The
	// channel is closed when ctx is cancelled or the feed fails for good.
	Subscribe(ctx context.Context, path string) (<-chan Event, error)

	// Append adds a document and returns the id the store assigned to it.
	Append(ctx context.Context, path string, data []byte) (string, error)

	// Delete removes the document with the given id.
	Delete(ctx context.Context, path, id string) error

	// Close gracefully shuts down the store.
	Close() error
}

// CollectionPath builds the public collection path scoped by deployment,
// e.g. artifacts/default-app-id/public/data/allStickers.
func CollectionPath(deploymentID, collection string) string {
	return strings.Join([]string{"artifacts", deploymentID, "public", "data", collection}, "/")
}
