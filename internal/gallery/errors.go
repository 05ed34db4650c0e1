package gallery

import (
	"errors"
	"fmt"

	"stickershelf/internal/domain"
	"stickershelf/internal/storage"
)

// ErrAlreadySubscribed is returned by a second Subscribe on the same Gallery.
var ErrAlreadySubscribed = errors.New("gallery already subscribed")

// SubscriptionError reports a feed that could not be opened or that failed
// while open. The snapshot keeps its last good value.
type SubscriptionError struct {
	Path string
	Err  error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription on %s: %v", e.Path, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// UserMessage is the notice shown to whoever is looking at the gallery.
func (e *SubscriptionError) UserMessage() string {
	if errors.Is(e.Err, storage.ErrPermissionDenied) {
		return "The gallery cannot be read: the store denied access. Check the collection permissions."
	}
	return "Live updates are unavailable right now; showing the last loaded items."
}

// WriteError reports a failed create or remove. Nothing was written.
type WriteError struct {
	Op  string
	ID  string
	Err error
}

func (e *WriteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// UserMessage is the notice shown to the operator.
func (e *WriteError) UserMessage() string {
	switch {
	case errors.Is(e.Err, domain.ErrInvalidItem):
		return fmt.Sprintf("Not saved: %v.", e.Err)
	case errors.Is(e.Err, storage.ErrNotFound):
		return "That item no longer exists."
	case errors.Is(e.Err, storage.ErrPermissionDenied):
		return "The store rejected the change: check the network or the store permission rules."
	}
	return "The change failed: check the network or the store permission rules."
}
