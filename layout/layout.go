// Package layout defines the fractional-coordinate rectangle types used to
// describe where each input lands on the output canvas, and the pixel-space
// geometry math that turns a LayoutSolution into a concrete destination
// rectangle for one input at one canvas size.
package layout

// Rational is a numerator/denominator pair used to express a layout
// coordinate as a fraction of the canvas, so canvas size can change without
// introducing rounding drift in the layout description itself.
type Rational struct {
	Numerator   int32 `json:"n"`
	Denominator int32 `json:"d"`
}

// Scale multiplies dim by the rational and truncates, mirroring the
// original compositor's integer-division coordinate math:
// dim * numerator / denominator.
func (r Rational) Scale(dim uint32) uint32 {
	if r.Denominator == 0 {
		return 0
	}
	v := int64(dim) * int64(r.Numerator) / int64(r.Denominator)
	if v < 0 {
		return 0
	}
	return uint32(v)
}

// Rect is a rectangle in normalized fractional coordinates: left, top,
// width, height all expressed as fractions of the canvas in [0, 1].
// width+left <= 1 and height+top <= 1 are enforced softly: out-of-bounds
// rects are clamped at composition time, never rejected at configuration
// time (spec.md §3).
type Rect struct {
	Left   Rational `json:"left"`
	Top    Rational `json:"top"`
	Width  Rational `json:"width"`
	Height Rational `json:"height"`
}

// Shape tags the drawable region. Only rectangular regions are supported
// today; the tag exists so a future shape can be added without breaking the
// wire format.
type Shape int

const (
	ShapeRectangle Shape = iota
)

// Region is a Rect together with a shape tag.
type Region struct {
	Shape Shape `json:"shape"`
	Rect  Rect  `json:"rect"`
}

// LayoutEntry binds one input index to one canvas region. Entries are
// painted in slice order: later entries overdraw earlier ones.
type LayoutEntry struct {
	InputIndex uint8  `json:"input"`
	Region     Region `json:"region"`
}

// Solution is an ordered sequence of LayoutEntry describing one complete
// composition arrangement. Order defines paint order.
type Solution []LayoutEntry

// PixelRect is a destination or source rectangle in integer pixel
// coordinates, already clipped to its canvas/input bounds.
type PixelRect struct {
	X, Y, W, H uint32
}

// even rounds v down to the nearest even value. Chroma planes are
// half-resolution, so every coordinate fed to the scaler must be even.
func even(v uint32) uint32 {
	return v &^ 1
}

// DestRect computes the destination rectangle in pixel coordinates for a
// region on a canvas of the given size, clipped so it never extends past
// the canvas (spec.md §4.3 step 4).
func DestRect(r Rect, canvasW, canvasH uint32) PixelRect {
	x := r.Left.Scale(canvasW)
	y := r.Top.Scale(canvasH)
	w := r.Width.Scale(canvasW)
	h := r.Height.Scale(canvasH)

	if x+w > canvasW {
		if x > canvasW {
			x = canvasW
		}
		w = canvasW - x
	}
	if y+h > canvasH {
		if y > canvasH {
			y = canvasH
		}
		h = canvasH - y
	}
	return PixelRect{X: x, Y: y, W: w, H: h}
}

// FitPlacement is the result of reconciling an input's native size with a
// destination rectangle under a fit mode: a source pixel rectangle to read
// from the input, and a (possibly shrunk/offset) destination pixel
// rectangle to write into, both even-aligned for chroma-safe scaling.
type FitPlacement struct {
	Src PixelRect
	Dst PixelRect
}

// Fit computes the source and destination rectangles for placing an input
// of size (inW, inH) into dst under crop or letterbox semantics
// (spec.md §4.3 "Fit mode").
//
// crop=true: the source is the largest centered sub-rectangle of the input
// matching dst's aspect ratio; the destination is filled edge-to-edge.
//
// crop=false (letterbox): the source is the full input; the destination is
// shrunk to the largest sub-rectangle of the input's aspect ratio, centered
// within dst.
func Fit(inW, inH uint32, dst PixelRect, crop bool) FitPlacement {
	if inW == 0 || inH == 0 || dst.W == 0 || dst.H == 0 {
		return FitPlacement{}
	}

	var src, fitDst PixelRect
	if crop {
		srcW := min32(inW, dst.W*inH/dst.H)
		srcH := min32(inH, dst.H*inW/dst.W)
		src = PixelRect{
			X: (inW - srcW) / 2,
			Y: (inH - srcH) / 2,
			W: srcW,
			H: srcH,
		}
		fitDst = dst
	} else {
		src = PixelRect{X: 0, Y: 0, W: inW, H: inH}
		fitW := min32(dst.W, inW*dst.H/inH)
		fitH := min32(dst.H, inH*dst.W/inW)
		fitDst = PixelRect{
			X: dst.X + (dst.W-fitW)/2,
			Y: dst.Y + (dst.H-fitH)/2,
			W: fitW,
			H: fitH,
		}
	}

	src.X, src.Y, src.W, src.H = even(src.X), even(src.Y), even(src.W), even(src.H)
	fitDst.X, fitDst.Y, fitDst.W, fitDst.H = even(fitDst.X), even(fitDst.Y), even(fitDst.W), even(fitDst.H)

	return FitPlacement{Src: src, Dst: fitDst}
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
