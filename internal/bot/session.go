package bot

import (
	"fmt"
	"strings"
	"sync"

	"stickershelf/internal/domain"
	"stickershelf/internal/ingest"
)

type slot string

const (
	slotCover   slot = "cover"
	slotPreview slot = "preview"
)

// session is one operator's draft in progress.
type session struct {
	mu       sync.Mutex
	title    string
	link     string
	category domain.Category
	cover    *ingest.Field
	preview  *ingest.Field
	// active receives the next URL or upload.
	active slot
}

func newSession(norm *ingest.Normalizer) *session {
	return &session{
		category: domain.DefaultCategory,
		cover:    ingest.NewField(norm),
		preview:  ingest.NewField(norm),
		active:   slotCover,
	}
}

func (s *session) field(which slot) *ingest.Field {
	if which == slotPreview {
		return s.preview
	}
	return s.cover
}

// draft assembles what the gallery validates. An incomplete cover becomes a
// nil ref so the write path reports it.
func (s *session) draft() (domain.Draft, error) {
	cover, _ := s.cover.Ref()
	preview, err := s.preview.OptionalRef()
	if err != nil {
		return domain.Draft{}, err
	}
	return domain.Draft{
		Title:        s.title,
		Cover:        cover,
		Preview:      preview,
		PurchaseLink: s.link,
		Category:     s.category,
	}, nil
}

func (s *session) summary(label func(domain.Category) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", orDash(s.title))
	fmt.Fprintf(&b, "Category: %s\n", label(s.category))
	fmt.Fprintf(&b, "Cover (%s): %s\n", s.cover.Method(), s.cover.State())
	fmt.Fprintf(&b, "Preview (%s): %s\n", s.preview.Method(), s.preview.State())
	fmt.Fprintf(&b, "Store link: %s\n", orDash(s.link))
	fmt.Fprintf(&b, "Next image goes to: %s", s.active)
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
