package ingest

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	// ErrWrongMethod is returned when input does not match the field's method.
	ErrWrongMethod = errors.New("input does not match the selected method")
	// ErrFieldIncomplete is returned by Ref before the field holds a value.
	ErrFieldIncomplete = errors.New("image field has no value")
)

// Size check stages.
const (
	StageRaw     = "raw"
	StageEncoded = "encoded"
)

// SizeExceededError reports an image over a byte ceiling. At StageRaw it is
// raised before any decoding happens.
type SizeExceededError struct {
	Stage string
	Size  int64
	Limit int64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("%s image is %d bytes, limit is %d", e.Stage, e.Size, e.Limit)
}

// UserMessage is the notice shown to the operator.
func (e *SizeExceededError) UserMessage() string {
	if e.Stage == StageEncoded {
		return fmt.Sprintf("The compressed image is still %s (limit %s). Try a simpler or smaller picture.",
			humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
	}
	return fmt.Sprintf("The image is too large (%s, limit %s). Please pick a smaller one.",
		humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
}

// DecodeError reports a file that is not a readable image. The field it was
// attached to is reset to empty.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UserMessage is the notice shown to the operator.
func (e *DecodeError) UserMessage() string {
	return "That file could not be read as an image. JPG, PNG, GIF, WebP, BMP and TIFF are supported."
}
