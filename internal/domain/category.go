package domain

import (
	"fmt"
	"strings"
)

// Category is the closed set of gallery groupings.
type Category string

const (
	CategorySticker Category = "sticker"
	CategoryTheme   Category = "theme"
	CategoryEmoji   Category = "emoji"

	// DefaultCategory applies to records written before categories existed.
	DefaultCategory = CategorySticker

	// FilterAll selects every category.
	FilterAll = "all"
)

// Categories returns the enum in display order.
func Categories() []Category {
	return []Category{CategorySticker, CategoryTheme, CategoryEmoji}
}

// Effective maps an absent or unknown category to DefaultCategory.
func (c Category) Effective() Category {
	if !c.Valid() {
		return DefaultCategory
	}
	return c
}

// Valid reports whether c is one of the enum values.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory validates operator input; empty input means the default.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return DefaultCategory, nil
	}
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}
