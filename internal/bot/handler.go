package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"stickershelf/internal/config"
	"stickershelf/internal/domain"
	"stickershelf/internal/ingest"
	"stickershelf/internal/scraper"
)

// Catalog is the slice of the gallery the bot drives.
type Catalog interface {
	Create(ctx context.Context, draft domain.Draft) (string, error)
	Remove(ctx context.Context, id string) error
	Snapshot() []domain.CatalogItem
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot     *tgbot.Bot
	cfg     config.Config
	catalog Catalog
	scraper scraper.Scraper
	norm    *ingest.Normalizer
	client  *http.Client
	log     logrus.FieldLogger

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewHandler creates a new bot handler instance.
func NewHandler(cfg config.Config, catalog Catalog, scraper scraper.Scraper, norm *ingest.Normalizer, logger logrus.FieldLogger) (*Handler, error) {
	h := newHandler(cfg, catalog, scraper, norm, logger)

	// Every update goes through route.
	b, err := tgbot.New(cfg.TelegramBotToken, tgbot.WithDefaultHandler(h.route))
	if err != nil {
		h.log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.log.WithField("operators", len(cfg.OperatorIDs)).Info("Telegram bot handler initialized")
	return h, nil
}

func newHandler(cfg config.Config, catalog Catalog, scraper scraper.Scraper, norm *ingest.Normalizer, logger logrus.FieldLogger) *Handler {
	return &Handler{
		cfg:      cfg,
		catalog:  catalog,
		scraper:  scraper,
		norm:     norm,
		client:   http.DefaultClient,
		log:      logger.WithField("component", "bot_handler"),
		sessions: make(map[int64]*session),
	}
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

// route dispatches one update and sends the reply.
func (h *Handler) route(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	log := h.log.WithFields(logrus.Fields{
		"user_id": msg.From.ID,
		"chat_id": msg.Chat.ID,
	})

	var reply string
	switch {
	case len(msg.Photo) > 0:
		// The last size is the largest.
		photo := msg.Photo[len(msg.Photo)-1]
		reply = h.handleUploadRef(ctx, msg.Chat.ID, msg.From.ID, photo.FileID, "photo.jpg", "image/jpeg", int64(photo.FileSize))
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		doc := msg.Document
		reply = h.handleUploadRef(ctx, msg.Chat.ID, msg.From.ID, doc.FileID, doc.FileName, doc.MimeType, int64(doc.FileSize))
	case msg.Text != "":
		reply = h.handleText(ctx, msg.Chat.ID, msg.From.ID, msg.Text)
	default:
		log.Debug("Ignoring unsupported message")
		return
	}
	if reply == "" {
		return
	}

	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   reply,
	})
	if err != nil {
		log.WithError(err).Error("Failed to send reply")
	}
}

// handleUploadRef downloads a Telegram file and feeds it to the active field.
func (h *Handler) handleUploadRef(ctx context.Context, chatID, userID int64, fileID, name, mime string, size int64) string {
	if !h.cfg.IsOperator(userID) {
		return replyNotOperator
	}
	// Refuse before downloading when Telegram already told us the size.
	if size > 0 {
		if err := h.norm.CheckSize(size); err != nil {
			return userMessage(err)
		}
	}

	data, err := h.download(ctx, fileID)
	if err != nil {
		h.log.WithError(err).WithField("file_id", fileID).Error("Failed to download upload")
		return "Could not download that file from Telegram, please send it again."
	}
	return h.handleUpload(ctx, chatID, userID, ingest.File{Name: name, MIME: mime, Data: data})
}

func (h *Handler) download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := h.bot.GetFile(ctx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.bot.FileDownloadLink(file), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %s", resp.Status)
	}
	// One byte over the ceiling is enough for the normalizer to reject it.
	return io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxUploadBytes+1))
}
