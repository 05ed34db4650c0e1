package ingest

import (
	"context"
	"strings"

	"stickershelf/internal/domain"
)

// Method is how the operator supplies an image.
type Method int

const (
	MethodURL Method = iota
	MethodFile
)

func (m Method) String() string {
	if m == MethodFile {
		return "file"
	}
	return "url"
}

// State is where a Field is in its lifecycle.
type State int

const (
	StateEmpty State = iota
	StateURLEntry
	StateFileRaw
	StateFileNormalized
)

func (s State) String() string {
	switch s {
	case StateURLEntry:
		return "url"
	case StateFileRaw:
		return "file(raw)"
	case StateFileNormalized:
		return "file(normalized)"
	}
	return "empty"
}

// Field holds one image input of a draft. The two input methods are
// exclusive: switching method throws away whatever the field held.
// A Field is not safe for concurrent use.
type Field struct {
	norm   *Normalizer
	method Method
	state  State
	url    string
	raw    File
	image  domain.InlineImage
}

// NewField returns an empty field in URL mode.
func NewField(norm *Normalizer) *Field {
	return &Field{norm: norm}
}

func (f *Field) Method() Method { return f.method }
func (f *Field) State() State   { return f.state }

// SwitchMethod selects m and clears the field, even when m is unchanged.
func (f *Field) SwitchMethod(m Method) {
	f.method = m
	f.Clear()
}

// Clear empties the field without changing its method.
func (f *Field) Clear() {
	f.state = StateEmpty
	f.url = ""
	f.raw = File{}
	f.image = domain.InlineImage{}
}

// SetURL stores a remote URL. An empty string empties the field.
func (f *Field) SetURL(s string) error {
	if f.method != MethodURL {
		return ErrWrongMethod
	}
	s = strings.TrimSpace(s)
	if s == "" {
		f.Clear()
		return nil
	}
	f.url = s
	f.state = StateURLEntry
	return nil
}

// AttachFile normalizes file into the field. On any error the field is left
// empty.
func (f *Field) AttachFile(ctx context.Context, file File) error {
	if f.method != MethodFile {
		return ErrWrongMethod
	}
	f.Clear()
	f.raw = file
	f.state = StateFileRaw

	img, err := f.norm.Normalize(ctx, file)
	if err != nil {
		f.Clear()
		return err
	}
	f.raw = File{}
	f.image = img
	f.state = StateFileNormalized
	return nil
}

// Ref returns the ImageRef of a complete field.
func (f *Field) Ref() (domain.ImageRef, error) {
	switch f.state {
	case StateURLEntry:
		return domain.URLImage(f.url), nil
	case StateFileNormalized:
		return f.image, nil
	}
	return nil, ErrFieldIncomplete
}

// OptionalRef is Ref for fields that may stay empty: an empty field yields a
// nil ref and no error.
func (f *Field) OptionalRef() (domain.ImageRef, error) {
	if f.state == StateEmpty {
		return nil, nil
	}
	return f.Ref()
}
