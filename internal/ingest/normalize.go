// Package ingest turns operator-supplied images into storable ImageRefs.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"stickershelf/internal/domain"
)

// File is raw image material from a file picker or a chat upload.
type File struct {
	Name string
	// MIME is what the sender declared; decoding sniffs the real format.
	MIME string
	Data []byte
}

// Options bounds the normalization.
type Options struct {
	// MaxFileBytes rejects raw files before decoding.
	MaxFileBytes int64
	// MaxWidth is the widest image kept; wider ones are scaled down.
	MaxWidth int
	// Quality is the JPEG quality, 1 to 100.
	Quality int
	// MaxEncodedBytes rejects payloads that are still too large after
	// re-encoding. Zero disables the check.
	MaxEncodedBytes int64
	// MaxPixels refuses to allocate pixel buffers for images whose header
	// claims more pixels than this. Zero disables the check.
	MaxPixels int64
}

// DefaultOptions are the reference deployment limits.
func DefaultOptions() Options {
	return Options{
		MaxFileBytes:    2 * 1024 * 1024,
		MaxWidth:        500,
		Quality:         70,
		MaxEncodedBytes: 900 * 1024,
		MaxPixels:       50_000_000,
	}
}

// Normalizer decodes, downsamples and re-encodes images as JPEG.
type Normalizer struct {
	opts Options
	log  logrus.FieldLogger
}

// NewNormalizer creates a Normalizer with opts.
func NewNormalizer(opts Options, logger logrus.FieldLogger) *Normalizer {
	return &Normalizer{
		opts: opts,
		log:  logger.WithField("component", "ingest"),
	}
}

// CheckSize applies the raw ceiling to a size known ahead of the bytes, so
// callers can refuse a download before starting it.
func (n *Normalizer) CheckSize(size int64) error {
	if size > n.opts.MaxFileBytes {
		return &SizeExceededError{Stage: StageRaw, Size: size, Limit: n.opts.MaxFileBytes}
	}
	return nil
}

// Normalize converts file into an inline JPEG no wider than MaxWidth.
func (n *Normalizer) Normalize(ctx context.Context, file File) (domain.InlineImage, error) {
	log := n.log.WithFields(logrus.Fields{"file": file.Name, "size": len(file.Data)})

	if err := n.CheckSize(int64(len(file.Data))); err != nil {
		log.Warn("Rejected oversized image")
		return domain.InlineImage{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.InlineImage{}, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		return domain.InlineImage{}, &DecodeError{Name: file.Name, Err: err}
	}
	if n.opts.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > n.opts.MaxPixels {
		return domain.InlineImage{}, &DecodeError{
			Name: file.Name,
			Err:  fmt.Errorf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, n.opts.MaxPixels),
		}
	}

	src, _, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return domain.InlineImage{}, &DecodeError{Name: file.Name, Err: err}
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return domain.InlineImage{}, &DecodeError{Name: file.Name, Err: errors.New("image has no pixels")}
	}
	if err := ctx.Err(); err != nil {
		return domain.InlineImage{}, err
	}

	width, height := TargetSize(bounds.Dx(), bounds.Dy(), n.opts.MaxWidth)
	out := src
	if width != bounds.Dx() || height != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: n.opts.Quality}); err != nil {
		return domain.InlineImage{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	size := int64(buf.Len())
	if n.opts.MaxEncodedBytes > 0 && size > n.opts.MaxEncodedBytes {
		log.WithField("encoded_size", size).Warn("Encoded image over ceiling")
		return domain.InlineImage{}, &SizeExceededError{Stage: StageEncoded, Size: size, Limit: n.opts.MaxEncodedBytes}
	}

	log.WithFields(logrus.Fields{
		"format":       format,
		"source_dims":  fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
		"target_dims":  fmt.Sprintf("%dx%d", width, height),
		"encoded_size": size,
	}).Info("Image normalized")

	return domain.InlineImage{MIME: "image/jpeg", Data: buf.Bytes()}, nil
}

// TargetSize scales (w, h) down to maxWidth keeping the aspect ratio. The
// height is truncated to a whole pixel the way a canvas dimension is, and
// never drops below one.
func TargetSize(w, h, maxWidth int) (int, int) {
	if w <= maxWidth {
		return w, h
	}
	scaled := int(int64(h) * int64(maxWidth) / int64(w))
	if scaled < 1 {
		scaled = 1
	}
	return maxWidth, scaled
}
