package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ImageRef points at the pixels of an item image. It is either a URLImage or
// an InlineImage; the unexported marker keeps other types out.
type ImageRef interface {
	// String renders the reference the way it is stored: the URL itself or a
	// base64 data URI.
	String() string
	imageRef()
}

// URLImage is an image hosted elsewhere.
type URLImage string

func (u URLImage) String() string { return string(u) }
func (URLImage) imageRef()        {}

// InlineImage is a self-contained encoded image.
type InlineImage struct {
	MIME string
	Data []byte
}

// DataURI encodes the payload as data:<mime>;base64,<data>.
func (i InlineImage) DataURI() string {
	return "data:" + i.MIME + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

func (i InlineImage) String() string { return i.DataURI() }
func (InlineImage) imageRef()        {}

var errBadDataURI = errors.New("malformed data uri")

// ParseImageRef turns a stored string back into the matching variant.
// An empty string yields a nil ref.
func ParseImageRef(s string) (ImageRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "data:") {
		return URLImage(s), nil
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return nil, errBadDataURI
	}
	mime, enc, _ := strings.Cut(header, ";")
	if enc != "base64" {
		return nil, fmt.Errorf("%w: unsupported encoding %q", errBadDataURI, enc)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadDataURI, err)
	}
	return InlineImage{MIME: mime, Data: data}, nil
}

// imageString is the stored form of an optional ref.
func imageString(ref ImageRef) string {
	if ref == nil {
		return ""
	}
	return ref.String()
}
