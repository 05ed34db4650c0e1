package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// ErrBrowserNotFound is returned when no Chromium binary is available.
var ErrBrowserNotFound = errors.New("rod browser dependency not found")

const pageTimeout = 30 * time.Second

var (
	titleSelectors = []string{
		`meta[property="og:title"]`,
		`meta[name="twitter:title"]`,
	}
	descSelectors = []string{
		`meta[property="og:description"]`,
		`meta[name="description"]`,
	}
	imageSelectors = []string{
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`,
	}
)

// RodScraper implements the Scraper interface using the rod library.
// It launches a browser per call; listings are fetched rarely.
type RodScraper struct {
	log logrus.FieldLogger
}

// NewRodScraper creates a new scraper service instance.
func NewRodScraper(logger logrus.FieldLogger) *RodScraper {
	return &RodScraper{log: logger.WithField("component", "scraper")}
}

// ScrapeListing loads rawURL in a headless browser and reads its title,
// description and preview image from the usual meta tags.
func (s *RodScraper) ScrapeListing(ctx context.Context, rawURL string) (listing Listing, err error) {
	log := s.log.WithField("url", rawURL)

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Listing{}, fmt.Errorf("not a web link: %q", rawURL)
	}
	log.Info("Attempting to scrape listing")

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return Listing{}, ErrBrowserNotFound
	}
	controlURL, err := launcher.New().Bin(path).Launch()
	if err != nil {
		return Listing{}, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return Listing{}, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
			if err == nil {
				err = fmt.Errorf("error closing browser: %w", closeErr)
			}
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return Listing{}, fmt.Errorf("failed to create page: %w", err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Scraping timed out")
			return Listing{}, fmt.Errorf("scraping timed out for %s: %w", rawURL, pageCtx.Err())
		}
		log.WithError(err).Error("Failed to wait for page load")
		return Listing{}, fmt.Errorf("failed waiting for page load: %w", err)
	}

	listing.Title = firstMeta(page, titleSelectors, log)
	if listing.Title == "" {
		if el, elErr := page.Element("title"); elErr == nil {
			if text, textErr := el.Text(); textErr == nil {
				listing.Title = strings.TrimSpace(text)
			}
		}
	}
	listing.Description = firstMeta(page, descSelectors, log)
	if img := firstMeta(page, imageSelectors, log); img != "" {
		listing.ImageURL = resolve(u, img)
	}

	log.WithFields(logrus.Fields{
		"title": listing.Title,
		"image": listing.ImageURL,
	}).Info("Listing scraping completed")
	return listing, nil
}

// firstMeta returns the first non-empty content attribute among selectors.
// A missing tag is not an error.
func firstMeta(page *rod.Page, selectors []string, log logrus.FieldLogger) string {
	for _, selector := range selectors {
		has, el, err := page.Has(selector)
		if err != nil {
			log.WithError(err).WithField("selector", selector).Warn("Error searching for meta tag")
			continue
		}
		if !has {
			continue
		}
		content, err := el.Attribute("content")
		if err != nil {
			log.WithError(err).WithField("selector", selector).Warn("Failed to get content attribute from meta tag")
			continue
		}
		if content != nil && strings.TrimSpace(*content) != "" {
			return strings.TrimSpace(*content)
		}
	}
	return ""
}

// resolve makes a possibly relative og:image reference absolute.
func resolve(base *url.URL, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
