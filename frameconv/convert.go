// Package frameconv implements FrameConverter: a format-invariant adapter
// that copies an input media.Frame into a pooled buffer of a given size.
package frameconv

import (
	"fmt"

	"github.com/keycodingyfq/soft-compositor/media"
)

// Converter copies Frame payloads into pooled buffers. It holds no state,
// so a single Converter is safe for concurrent use; each SoftInput creates
// its own.
type Converter struct{}

// New returns a Converter.
func New() *Converter {
	return &Converter{}
}

// Convert copies src's Y/U/V planes into dst, which must already be sized
// to src's dimensions (the caller obtains dst from the buffer pool using
// src.Width/src.Height). This is a straight copy rather than a resample:
// the compositor only ever converts a frame into a buffer of its own native
// size, deferring any resizing to the scaler at composition time.
func (c *Converter) Convert(src *media.Frame, dst media.Buffer) error {
	if src.Width != dst.Width() || src.Height != dst.Height() {
		return fmt.Errorf("frameconv: size mismatch: src %dx%d, dst %dx%d",
			src.Width, src.Height, dst.Width(), dst.Height())
	}
	if len(src.Y) != len(dst.Y()) || len(src.U) != len(dst.U()) || len(src.V) != len(dst.V()) {
		return fmt.Errorf("frameconv: plane size mismatch")
	}
	copy(dst.Y(), src.Y)
	copy(dst.U(), src.U)
	copy(dst.V(), src.V)
	return nil
}
