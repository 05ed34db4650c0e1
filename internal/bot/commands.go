package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"stickershelf/internal/domain"
	"stickershelf/internal/gallery"
	"stickershelf/internal/ingest"
)

const (
	replyNotOperator = "Only operators can edit the gallery. Use /list to browse."
	maxListed        = 30
)

const helpText = `Commands:
/new - start a new item
/title <text> - set the title
/category <sticker|theme|emoji> - set the category
/link <url> - set the store link
/cover url|upload - choose how the cover is given
/preview url|upload|none - choose how the preview is given
/fetch <store url> - fill title, link and cover from a store page
/status - show the draft
/submit - publish the draft
/cancel - drop the draft
/delete <id> - remove an item
/list [category|all] - list items
Send a link or an image to fill the selected image field.`

type userMessager interface {
	UserMessage() string
}

// userMessage renders err for the operator.
func userMessage(err error) string {
	var um userMessager
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return fmt.Sprintf("Something went wrong: %v", err)
}

// parseCommand splits "/cmd@bot arg text" into "cmd" and "arg text".
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	head, arg, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(arg)
}

func (h *Handler) session(chatID int64) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[chatID]
	if !ok {
		s = newSession(h.norm)
		h.sessions[chatID] = s
	}
	return s
}

func (h *Handler) resetSession(chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, chatID)
}

// handleText answers a text message.
func (h *Handler) handleText(ctx context.Context, chatID, userID int64, text string) string {
	log := h.log.WithFields(logrus.Fields{"user_id": userID, "chat_id": chatID})

	if !strings.HasPrefix(strings.TrimSpace(text), "/") {
		if !h.cfg.IsOperator(userID) {
			return replyNotOperator
		}
		return h.handleURL(chatID, text)
	}

	cmd, arg := parseCommand(text)
	log.WithField("command", cmd).Info("Received command")

	switch cmd {
	case "start", "help":
		if h.cfg.IsOperator(userID) {
			return "Welcome back!\n" + helpText
		}
		return "Welcome! Use /list to browse the gallery."
	case "list":
		return h.list(arg)
	}

	if !h.cfg.IsOperator(userID) {
		return replyNotOperator
	}

	switch cmd {
	case "new", "cancel":
		h.resetSession(chatID)
		if cmd == "cancel" {
			return "Draft dropped."
		}
		return "New draft started. Set a /title, then send a cover link or use /cover upload."
	case "title":
		return h.withSession(chatID, func(s *session) string {
			if arg == "" {
				return "Usage: /title <text>"
			}
			s.title = arg
			return "Title set."
		})
	case "category":
		c, err := domain.ParseCategory(arg)
		if err != nil || arg == "" {
			return "Usage: /category " + h.categoryChoices()
		}
		return h.withSession(chatID, func(s *session) string {
			s.category = c
			return "Category set to " + h.cfg.Label(c) + "."
		})
	case "link":
		if arg != "" && !isWebURL(arg) {
			return "That does not look like a web link."
		}
		return h.withSession(chatID, func(s *session) string {
			s.link = arg
			if arg == "" {
				return "Store link cleared."
			}
			return "Store link set."
		})
	case "cover":
		return h.selectMethod(chatID, slotCover, arg)
	case "preview":
		return h.selectMethod(chatID, slotPreview, arg)
	case "fetch":
		return h.fetch(ctx, chatID, arg)
	case "status":
		return h.withSession(chatID, func(s *session) string {
			return s.summary(h.cfg.Label)
		})
	case "submit":
		return h.submit(ctx, chatID)
	case "delete":
		return h.remove(ctx, arg)
	}
	return "Unknown command.\n" + helpText
}

func (h *Handler) withSession(chatID int64, fn func(s *session) string) string {
	s := h.session(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// selectMethod points the next image at which and, when given, switches its
// input method. Switching always clears the field.
func (h *Handler) selectMethod(chatID int64, which slot, arg string) string {
	return h.withSession(chatID, func(s *session) string {
		field := s.field(which)
		switch strings.ToLower(arg) {
		case "":
		case "url":
			field.SwitchMethod(ingest.MethodURL)
		case "upload", "file":
			field.SwitchMethod(ingest.MethodFile)
		case "none", "clear":
			if which != slotPreview {
				return "The cover is required; choose url or upload."
			}
			field.Clear()
			s.active = slotCover
			return "Preview cleared."
		default:
			return fmt.Sprintf("Usage: /%s url|upload", which)
		}
		s.active = which
		if field.Method() == ingest.MethodFile {
			return fmt.Sprintf("Send the %s image as a photo or file.", which)
		}
		return fmt.Sprintf("Send the %s image link.", which)
	})
}

func (h *Handler) handleURL(chatID int64, text string) string {
	text = strings.TrimSpace(text)
	if !isWebURL(text) {
		return "Send an image link, an image, or a command. /help lists them."
	}
	return h.withSession(chatID, func(s *session) string {
		field := s.field(s.active)
		if field.Method() != ingest.MethodURL {
			return fmt.Sprintf("The %s expects an upload. Use /%s url to paste a link instead.", s.active, s.active)
		}
		if err := field.SetURL(text); err != nil {
			return userMessage(err)
		}
		return fmt.Sprintf("%s link set.", capitalize(string(s.active)))
	})
}

// handleUpload normalizes an uploaded image into the active field.
func (h *Handler) handleUpload(ctx context.Context, chatID, userID int64, file ingest.File) string {
	if !h.cfg.IsOperator(userID) {
		return replyNotOperator
	}
	return h.withSession(chatID, func(s *session) string {
		field := s.field(s.active)
		if field.Method() != ingest.MethodFile {
			return fmt.Sprintf("The %s expects a link. Use /%s upload to send an image instead.", s.active, s.active)
		}
		if err := field.AttachFile(ctx, file); err != nil {
			h.log.WithError(err).WithField("file", file.Name).Warn("Upload rejected")
			return userMessage(err)
		}
		return fmt.Sprintf("%s image ready.", capitalize(string(s.active)))
	})
}

func (h *Handler) fetch(ctx context.Context, chatID int64, link string) string {
	if !isWebURL(link) {
		return "Usage: /fetch <store url>"
	}
	if h.scraper == nil {
		return "Fetching store pages is not available."
	}
	listing, err := h.scraper.ScrapeListing(ctx, link)
	if err != nil {
		h.log.WithError(err).WithField("url", link).Warn("Listing fetch failed")
		return "Could not read that store page."
	}

	return h.withSession(chatID, func(s *session) string {
		s.link = link
		if s.title == "" {
			s.title = listing.Title
		}
		if listing.ImageURL != "" {
			s.cover.SwitchMethod(ingest.MethodURL)
			_ = s.cover.SetURL(listing.ImageURL)
		}
		return "Draft filled from the store page.\n" + s.summary(h.cfg.Label)
	})
}

func (h *Handler) submit(ctx context.Context, chatID int64) string {
	s := h.session(chatID)
	s.mu.Lock()
	draft, err := s.draft()
	s.mu.Unlock()
	if err != nil {
		return "The preview image is still being processed or is incomplete. Send it again or use /preview none."
	}

	id, err := h.catalog.Create(ctx, draft)
	if err != nil {
		return userMessage(err)
	}
	h.resetSession(chatID)
	return fmt.Sprintf("Published %q (id %s).", draft.Title, id)
}

func (h *Handler) remove(ctx context.Context, id string) string {
	if id == "" {
		return "Usage: /delete <id>"
	}
	if err := h.catalog.Remove(ctx, id); err != nil {
		return userMessage(err)
	}
	return "Deleted. The gallery refreshes on the next sync."
}

func (h *Handler) list(arg string) string {
	filter := strings.ToLower(strings.TrimSpace(arg))
	if filter == "" {
		filter = domain.FilterAll
	}
	if filter != domain.FilterAll && !domain.Category(filter).Valid() {
		return "Usage: /list [all|" + h.categoryChoices() + "]"
	}

	items := gallery.Filter(h.catalog.Snapshot(), filter)
	if len(items) == 0 {
		if filter == domain.FilterAll {
			return "Nothing published yet."
		}
		return fmt.Sprintf("No %s items yet.", h.cfg.Label(domain.Category(filter)))
	}

	var b strings.Builder
	for i, item := range items {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more", len(items)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%s · %s · %s\n", item.ID, item.Title, h.cfg.Label(item.Category.Effective()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) categoryChoices() string {
	names := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, "|")
}

func isWebURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
