package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"stickershelf/internal/config"
	"stickershelf/internal/domain"
	"stickershelf/internal/gallery"
)

// Snapshotter is the read side of the gallery.
type Snapshotter interface {
	Snapshot() []domain.CatalogItem
}

// NewRouter creates the HTTP router for gallery viewers.
func NewRouter(items Snapshotter, cfg config.Config, logger logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	log := logger.WithField("component", "api")

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(requestLogger{log: log}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{items: items, cfg: cfg, log: log}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.GetHealth)
		r.Get("/categories", h.ListCategories)
		r.Get("/items", h.ListItems)
		r.Get("/items/{itemID}/image/{slot}", h.GetImage)
	})

	return r
}

type handlers struct {
	items Snapshotter
	cfg   config.Config
	log   logrus.FieldLogger
}

// APIError represents a structured error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the top-level error envelope.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("Failed to write response")
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

func (h *handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"items":  len(h.items.Snapshot()),
	})
}

type categoryView struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func (h *handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	out := []categoryView{{Value: domain.FilterAll, Label: "All"}}
	for _, c := range domain.Categories() {
		out = append(out, categoryView{Value: string(c), Label: h.cfg.Label(c)})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

type itemView struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	CategoryLabel string `json:"category_label"`
	CoverURL      string `json:"cover_url"`
	PreviewURL    string `json:"preview_url,omitempty"`
	PurchaseLink  string `json:"purchase_link,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// ListItems returns the snapshot filtered by ?category= (default all).
// Inline images are linked through the image endpoint rather than embedded.
func (h *handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		category = domain.FilterAll
	}
	if category != domain.FilterAll && !domain.Category(category).Valid() {
		h.writeError(w, http.StatusBadRequest, "bad_category", "unknown category "+strconv.Quote(category))
		return
	}

	items := gallery.Filter(h.items.Snapshot(), category)
	out := make([]itemView, 0, len(items))
	for _, item := range items {
		effective := item.Category.Effective()
		view := itemView{
			ID:            item.ID,
			Title:         item.Title,
			Category:      string(effective),
			CategoryLabel: h.cfg.Label(effective),
			CoverURL:      imageLink(item.ID, "cover", item.Cover),
			PurchaseLink:  item.PurchaseLink,
			CreatedAt:     item.CreatedAt,
		}
		if item.Preview != nil {
			view.PreviewURL = imageLink(item.ID, "preview", item.Preview)
		}
		out = append(out, view)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func imageLink(id, slot string, ref domain.ImageRef) string {
	if u, ok := ref.(domain.URLImage); ok {
		return string(u)
	}
	return "/v1/items/" + id + "/image/" + slot
}

// GetImage serves an inline image or redirects to a hosted one.
func (h *handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemID")

	var item domain.CatalogItem
	found := false
	for _, it := range h.items.Snapshot() {
		if it.ID == id {
			item, found = it, true
			break
		}
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "not_found", "item not found")
		return
	}

	var ref domain.ImageRef
	switch chi.URLParam(r, "slot") {
	case "cover":
		ref = item.Cover
	case "preview":
		ref = item.Preview
	default:
		h.writeError(w, http.StatusNotFound, "not_found", "unknown image slot")
		return
	}

	switch img := ref.(type) {
	case domain.InlineImage:
		w.Header().Set("Content-Type", img.MIME)
		w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
		w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(img.Data); err != nil {
			h.log.WithError(err).Warn("Failed to write image")
		}
	case domain.URLImage:
		http.Redirect(w, r, string(img), http.StatusFound)
	default:
		h.writeError(w, http.StatusNotFound, "not_found", "item has no such image")
	}
}
