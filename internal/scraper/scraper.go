package scraper

import "context"

// Listing is what a store page says about the item it sells.
type Listing struct {
	Title       string
	Description string
	// ImageURL is the page's og:image, empty when the page has none.
	ImageURL string
}

// Scraper fetches listing metadata from a purchase link.
type Scraper interface {
	ScrapeListing(ctx context.Context, url string) (Listing, error)
}
