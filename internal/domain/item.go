package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidItem is wrapped by every draft validation failure.
	ErrInvalidItem     = errors.New("invalid item")
	ErrEmptyTitle      = fmt.Errorf("%w: title is required", ErrInvalidItem)
	ErrMissingCover    = fmt.Errorf("%w: cover image is required", ErrInvalidItem)
	ErrUnknownCategory = fmt.Errorf("%w: unknown category", ErrInvalidItem)
)

// CatalogItem is one entry of the gallery.
type CatalogItem struct {
	// ID is assigned by the store and never changes.
	ID    string
	Title string
	Cover ImageRef
	// Preview is shown on hover; nil when the item has none.
	Preview ImageRef
	// PurchaseLink is empty when the item has no store page yet.
	PurchaseLink string
	// Category may be empty or unknown on stored records, see Category.Effective.
	Category Category
	// CreatedAt is unix milliseconds, used for ordering only.
	CreatedAt int64
}

// Draft is an item the operator is still putting together.
type Draft struct {
	Title        string
	Cover        ImageRef
	Preview      ImageRef
	PurchaseLink string
	Category     Category
}

// Validate checks the preconditions the write path enforces before a draft
// reaches the store.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrEmptyTitle
	}
	if d.Cover == nil || d.Cover.String() == "" {
		return ErrMissingCover
	}
	if d.Category != "" && !d.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, d.Category)
	}
	return nil
}

// record is the stored document layout. Field names match the records the
// public collection already holds.
type record struct {
	Title           string   `json:"title"`
	ImageURL        string   `json:"imageUrl"`
	ContentImageURL string   `json:"contentImageUrl,omitempty"`
	StoreURL        string   `json:"storeUrl,omitempty"`
	Category        Category `json:"category,omitempty"`
	CreatedAt       int64    `json:"createdAt"`
}

// EncodeDraft serializes a validated draft with its creation stamp.
func EncodeDraft(d Draft, createdAt int64) ([]byte, error) {
	category := d.Category
	if category == "" {
		category = DefaultCategory
	}
	data, err := json.Marshal(record{
		Title:           strings.TrimSpace(d.Title),
		ImageURL:        imageString(d.Cover),
		ContentImageURL: imageString(d.Preview),
		StoreURL:        strings.TrimSpace(d.PurchaseLink),
		Category:        category,
		CreatedAt:       createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return data, nil
}

// DecodeItem maps a stored document onto a CatalogItem.
func DecodeItem(id string, data []byte) (CatalogItem, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return CatalogItem{}, fmt.Errorf("failed to unmarshal item %s: %w", id, err)
	}

	cover, err := ParseImageRef(rec.ImageURL)
	if err != nil {
		return CatalogItem{}, fmt.Errorf("item %s cover: %w", id, err)
	}
	preview, err := ParseImageRef(rec.ContentImageURL)
	if err != nil {
		return CatalogItem{}, fmt.Errorf("item %s preview: %w", id, err)
	}

	return CatalogItem{
		ID:           id,
		Title:        rec.Title,
		Cover:        cover,
		Preview:      preview,
		PurchaseLink: rec.StoreURL,
		Category:     rec.Category,
		CreatedAt:    rec.CreatedAt,
	}, nil
}
