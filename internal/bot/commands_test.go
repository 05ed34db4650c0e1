package bot

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickershelf/internal/config"
	"stickershelf/internal/domain"
	"stickershelf/internal/gallery"
	"stickershelf/internal/ingest"
	"stickershelf/internal/scraper"
	"stickershelf/internal/storage"
)

const (
	operatorID = int64(42)
	visitorID  = int64(7)
	chatID     = int64(1000)
)

type fakeCatalog struct {
	created []domain.Draft
	removed []string
	items   []domain.CatalogItem
}

func (c *fakeCatalog) Create(ctx context.Context, draft domain.Draft) (string, error) {
	if err := draft.Validate(); err != nil {
		return "", &gallery.WriteError{Op: "create", Err: err}
	}
	c.created = append(c.created, draft)
	return "new-id", nil
}

func (c *fakeCatalog) Remove(ctx context.Context, id string) error {
	for _, item := range c.items {
		if item.ID == id {
			c.removed = append(c.removed, id)
			return nil
		}
	}
	return &gallery.WriteError{Op: "remove", ID: id, Err: storage.ErrNotFound}
}

func (c *fakeCatalog) Snapshot() []domain.CatalogItem { return c.items }

type fakeScraper struct {
	listing scraper.Listing
}

func (s fakeScraper) ScrapeListing(ctx context.Context, url string) (scraper.Listing, error) {
	return s.listing, nil
}

func newTestHandler(t *testing.T, catalog *fakeCatalog) *Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Config{
		OperatorIDs:    []int64{operatorID},
		MaxUploadBytes: 2 * 1024 * 1024,
		CategoryLabels: map[string]string{"sticker": "Stickers", "theme": "Themes", "emoji": "Emoji"},
	}
	norm := ingest.NewNormalizer(ingest.DefaultOptions(), logger)
	scr := fakeScraper{listing: scraper.Listing{Title: "Shop Cat", ImageURL: "https://cdn.example/cat.png"}}
	return newHandler(cfg, catalog, scr, norm, logger)
}

func pngUpload(t *testing.T, w, h int) ingest.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return ingest.File{Name: "cat.png", MIME: "image/png", Data: buf.Bytes()}
}

func TestParseCommand(t *testing.T) {
	cmd, arg := parseCommand("/Title@shelf_bot  Happy Cat ")
	assert.Equal(t, "title", cmd)
	assert.Equal(t, "Happy Cat", arg)

	cmd, arg = parseCommand("/submit")
	assert.Equal(t, "submit", cmd)
	assert.Empty(t, arg)
}

func TestVisitorsCannotEdit(t *testing.T) {
	h := newTestHandler(t, &fakeCatalog{})
	ctx := context.Background()

	assert.Equal(t, replyNotOperator, h.handleText(ctx, chatID, visitorID, "/title Cat"))
	assert.Equal(t, replyNotOperator, h.handleText(ctx, chatID, visitorID, "https://x/cat.png"))
	assert.Equal(t, replyNotOperator, h.handleUpload(ctx, chatID, visitorID, pngUpload(t, 4, 4)))
	assert.Contains(t, h.handleText(ctx, chatID, visitorID, "/start"), "/list")
}

func TestSubmitWithURLCover(t *testing.T) {
	catalog := &fakeCatalog{}
	h := newTestHandler(t, catalog)
	ctx := context.Background()

	h.handleText(ctx, chatID, operatorID, "/new")
	h.handleText(ctx, chatID, operatorID, "/title Cat")
	h.handleText(ctx, chatID, operatorID, "/category theme")
	h.handleText(ctx, chatID, operatorID, "/link https://store.example/cat")
	assert.Equal(t, "Cover link set.", h.handleText(ctx, chatID, operatorID, "http://x/cat.png"))

	reply := h.handleText(ctx, chatID, operatorID, "/submit")
	assert.Contains(t, reply, "new-id")

	require.Len(t, catalog.created, 1)
	got := catalog.created[0]
	assert.Equal(t, "Cat", got.Title)
	assert.Equal(t, domain.CategoryTheme, got.Category)
	assert.Equal(t, domain.URLImage("http://x/cat.png"), got.Cover)
	assert.Nil(t, got.Preview)
	assert.Equal(t, "https://store.example/cat", got.PurchaseLink)

	// The session is reset after a successful submit.
	assert.Contains(t, h.handleText(ctx, chatID, operatorID, "/status"), "Title: -")
}

func TestSubmitWithUploadedImages(t *testing.T) {
	catalog := &fakeCatalog{}
	h := newTestHandler(t, catalog)
	ctx := context.Background()

	h.handleText(ctx, chatID, operatorID, "/title Cat")
	h.handleText(ctx, chatID, operatorID, "/cover upload")
	assert.Equal(t, "Cover image ready.", h.handleUpload(ctx, chatID, operatorID, pngUpload(t, 900, 300)))
	h.handleText(ctx, chatID, operatorID, "/preview upload")
	assert.Equal(t, "Preview image ready.", h.handleUpload(ctx, chatID, operatorID, pngUpload(t, 100, 100)))

	h.handleText(ctx, chatID, operatorID, "/submit")
	require.Len(t, catalog.created, 1)
	_, coverInline := catalog.created[0].Cover.(domain.InlineImage)
	_, previewInline := catalog.created[0].Preview.(domain.InlineImage)
	assert.True(t, coverInline)
	assert.True(t, previewInline)
}

func TestSubmitRejectsEmptyTitle(t *testing.T) {
	catalog := &fakeCatalog{}
	h := newTestHandler(t, catalog)
	ctx := context.Background()

	h.handleText(ctx, chatID, operatorID, "http://x/cat.png")
	reply := h.handleText(ctx, chatID, operatorID, "/submit")

	assert.Contains(t, reply, "title is required")
	assert.Empty(t, catalog.created)
}

func TestSwitchingMethodClearsField(t *testing.T) {
	h := newTestHandler(t, &fakeCatalog{})
	ctx := context.Background()

	h.handleText(ctx, chatID, operatorID, "http://x/cat.png")
	assert.Contains(t, h.handleText(ctx, chatID, operatorID, "/status"), "Cover (url): url")

	h.handleText(ctx, chatID, operatorID, "/cover upload")
	assert.Contains(t, h.handleText(ctx, chatID, operatorID, "/status"), "Cover (file): empty")

	// Links are refused while the field expects an upload.
	assert.Contains(t, h.handleText(ctx, chatID, operatorID, "http://x/cat.png"), "expects an upload")
}

func TestUploadErrorsAreReported(t *testing.T) {
	h := newTestHandler(t, &fakeCatalog{})
	ctx := context.Background()

	h.handleText(ctx, chatID, operatorID, "/cover upload")
	reply := h.handleUpload(ctx, chatID, operatorID, ingest.File{Name: "x.png", Data: []byte("nope")})
	assert.Contains(t, reply, "could not be read")

	big := ingest.File{Name: "big.png", Data: bytes.Repeat([]byte{0}, 2*1024*1024+1)}
	assert.Contains(t, h.handleUpload(ctx, chatID, operatorID, big), "too large")
	assert.Contains(t, h.handleText(ctx, chatID, operatorID, "/status"), "Cover (file): empty")
}

func TestFetchFillsDraft(t *testing.T) {
	catalog := &fakeCatalog{}
	h := newTestHandler(t, catalog)
	ctx := context.Background()

	h.handleText(ctx, chatID, operatorID, "/cover upload")
	reply := h.handleText(ctx, chatID, operatorID, "/fetch https://store.example/cat")
	assert.Contains(t, reply, "Shop Cat")

	h.handleText(ctx, chatID, operatorID, "/submit")
	require.Len(t, catalog.created, 1)
	assert.Equal(t, "Shop Cat", catalog.created[0].Title)
	assert.Equal(t, domain.URLImage("https://cdn.example/cat.png"), catalog.created[0].Cover)
	assert.Equal(t, "https://store.example/cat", catalog.created[0].PurchaseLink)
}

func TestDelete(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.CatalogItem{{ID: "a", Title: "Cat"}}}
	h := newTestHandler(t, catalog)
	ctx := context.Background()

	assert.Contains(t, h.handleText(ctx, chatID, operatorID, "/delete a"), "next sync")
	assert.Equal(t, []string{"a"}, catalog.removed)

	assert.Equal(t, "That item no longer exists.", h.handleText(ctx, chatID, operatorID, "/delete missing-id"))
}

func TestList(t *testing.T) {
	catalog := &fakeCatalog{items: []domain.CatalogItem{
		{ID: "b", Title: "Theme", Category: domain.CategoryTheme},
		{ID: "a", Title: "Legacy"},
	}}
	h := newTestHandler(t, catalog)
	ctx := context.Background()

	assert.Equal(t, "b · Theme · Themes\na · Legacy · Stickers", h.handleText(ctx, chatID, visitorID, "/list"))
	assert.Equal(t, "a · Legacy · Stickers", h.handleText(ctx, chatID, visitorID, "/list sticker"))
	assert.Equal(t, "No Emoji items yet.", h.handleText(ctx, chatID, visitorID, "/list emoji"))
	assert.Contains(t, h.handleText(ctx, chatID, visitorID, "/list fonts"), "Usage")
}
