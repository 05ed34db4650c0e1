package scraper

import (
	"context"
	"io"
	"net/url"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	base, err := url.Parse("https://store.line.me/stickershop/product/123/zh-Hant")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/a.png", resolve(base, "https://cdn.example/a.png"))
	assert.Equal(t, "https://store.line.me/img/a.png", resolve(base, "/img/a.png"))
	assert.Equal(t, "https://img.example/b.png", resolve(base, "//img.example/b.png"))
}

func TestScrapeListing_RejectsNonWebLinks(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewRodScraper(logger)

	for _, raw := range []string{"", "ftp://x/y", "javascript:alert(1)", "store.line.me/x"} {
		_, err := s.ScrapeListing(context.Background(), raw)
		assert.Error(t, err, raw)
		assert.NotErrorIs(t, err, ErrBrowserNotFound, raw)
	}
}
