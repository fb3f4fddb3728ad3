// Package textoverlay defines the text-drawing collaborator the generator
// calls once per composed frame, and a minimal direct-to-Y-plane
// implementation of it.
//
// spec.md §1 treats text overlay rendering as "a black-box drawing
// collaborator called once per composed frame" and explicitly puts it out
// of scope for the compositor's own hard-engineering surface. No font-
// rendering or text-layout library appears anywhere in the retrieval pack
// (the closest candidates — libgowebrtc, prism — draw no text at all), so
// this package implements the collaborator against the standard library: a
// fixed 5x7 bitmap font blitted directly into the luma plane. See
// DESIGN.md for the stdlib justification.
package textoverlay

import (
	"sync"

	"github.com/keycodingyfq/soft-compositor/media"
)

// Drawer is the text-overlay collaborator contract: SetText/Enable
// configure what gets drawn, Draw paints the configured text onto a
// composed canvas once per frame. A Drawer must be safe to call from a
// single generator's tick goroutine; it is not shared across generators.
type Drawer interface {
	SetText(spec string)
	Enable(on bool)
	Draw(canvas media.Buffer)
}

// BitmapDrawer is a minimal Drawer: it paints spec as white text in a
// fixed 5x7 bitmap font along the top-left of the canvas's luma plane. The
// spec string is opaque to the rest of the compositor (spec.md §6: "the
// spec syntax is delegated to the overlay collaborator") — here, it is
// simply the literal text to draw.
type BitmapDrawer struct {
	mu      sync.Mutex
	text    string
	enabled bool
}

// New returns a disabled BitmapDrawer.
func New() *BitmapDrawer {
	return &BitmapDrawer{}
}

// SetText implements Drawer.
func (d *BitmapDrawer) SetText(spec string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = spec
}

// Enable implements Drawer.
func (d *BitmapDrawer) Enable(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = on
}

// Draw implements Drawer.
func (d *BitmapDrawer) Draw(canvas media.Buffer) {
	d.mu.Lock()
	text, enabled := d.text, d.enabled
	d.mu.Unlock()

	if !enabled || text == "" {
		return
	}
	drawString(canvas, 8, 8, text)
}

const (
	glyphW = 5
	glyphH = 7
	luma   = 235 // near-white, leaves headroom for Rec.601 full range
)

// drawString blits text into the Y plane starting at (x0, y0), one glyph
// cell (glyphW+1 wide) per character. Characters with no glyph entry are
// skipped (rendered as blank space).
func drawString(canvas media.Buffer, x0, y0 uint32, text string) {
	w, h := canvas.Width(), canvas.Height()
	stride := canvas.StrideY()
	y := canvas.Y()

	x := x0
	for _, r := range text {
		glyph, ok := font5x7[r]
		if ok {
			for row := uint32(0); row < glyphH; row++ {
				py := y0 + row
				if py >= h {
					break
				}
				bits := glyph[row]
				for col := uint32(0); col < glyphW; col++ {
					px := x + col
					if px >= w {
						break
					}
					if bits&(1<<(glyphW-1-col)) != 0 {
						y[py*stride+px] = luma
					}
				}
			}
		}
		x += glyphW + 1
		if x >= w {
			break
		}
	}
}
