// Package scale defines the YUV scaling contract the compositor depends on
// and a stdlib box-filter implementation of it.
//
// Per spec.md §1, the colorspace-scaling primitive is assumed to be a
// standard library referenced by its contract only; no Go binding of such a
// library (e.g. libyuv) exists anywhere in the example pack this repository
// was grounded on. The pack's own media pipeline that needs I420 scaling
// (thesyncim/libgowebrtc, pkg/track/scale.go) faces the same gap and hand-
// rolls an identical box-filter scaler against the standard library — this
// package follows that precedent. Scaler is an interface specifically so a
// real cgo libyuv binding can be substituted without touching the
// compositor package.
package scale

import "github.com/keycodingyfq/soft-compositor/media"

// Scaler scales and copies a rectangular region of a source I420 buffer
// into a rectangular region of a destination I420 buffer. Both rectangles
// are in pixel coordinates and are expected to already be even-aligned
// (chroma planes are half resolution).
type Scaler interface {
	Scale(src media.Buffer, srcX, srcY, srcW, srcH uint32, dst media.Buffer, dstX, dstY, dstW, dstH uint32) error
}

// BoxFilter is a Scaler using area-averaging downsample / nearest-neighbour
// upsample (each destination pixel copies the one source pixel it falls
// on), matching libyuv's kFilterBox quality tier closely enough for a
// software-only compositor when downscaling.
type BoxFilter struct{}

// New returns a BoxFilter scaler.
func New() *BoxFilter {
	return &BoxFilter{}
}

// Scale implements Scaler.
func (BoxFilter) Scale(src media.Buffer, srcX, srcY, srcW, srcH uint32, dst media.Buffer, dstX, dstY, dstW, dstH uint32) error {
	if srcW == 0 || srcH == 0 || dstW == 0 || dstH == 0 {
		return nil
	}

	scalePlane(src.Y(), src.StrideY(), srcX, srcY, srcW, srcH,
		dst.Y(), dst.StrideY(), dstX, dstY, dstW, dstH)

	srcCX, srcCY, srcCW, srcCH := srcX/2, srcY/2, (srcW+1)/2, (srcH+1)/2
	dstCX, dstCY, dstCW, dstCH := dstX/2, dstY/2, (dstW+1)/2, (dstH+1)/2

	scalePlane(src.U(), src.StrideU(), srcCX, srcCY, srcCW, srcCH,
		dst.U(), dst.StrideU(), dstCX, dstCY, dstCW, dstCH)
	scalePlane(src.V(), src.StrideV(), srcCX, srcCY, srcCW, srcCH,
		dst.V(), dst.StrideV(), dstCX, dstCY, dstCW, dstCH)

	return nil
}

// scalePlane box-filters the srcW x srcH region of src starting at
// (srcX, srcY) into the dstW x dstH region of dst starting at
// (dstX, dstY).
func scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH uint32, dst []byte, dstStride, dstX, dstY, dstW, dstH uint32) {
	xRatio := float64(srcW) / float64(dstW)
	yRatio := float64(srcH) / float64(dstH)

	for dy := uint32(0); dy < dstH; dy++ {
		sy0 := srcY + uint32(float64(dy)*yRatio)
		sy1 := srcY + uint32(float64(dy+1)*yRatio)
		if sy1 > srcY+srcH {
			sy1 = srcY + srcH
		}
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}

		dstRow := (dstY + dy) * dstStride

		for dx := uint32(0); dx < dstW; dx++ {
			sx0 := srcX + uint32(float64(dx)*xRatio)
			sx1 := srcX + uint32(float64(dx+1)*xRatio)
			if sx1 > srcX+srcW {
				sx1 = srcX + srcW
			}
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}

			var sum, count uint32
			for sy := sy0; sy < sy1; sy++ {
				row := sy * srcStride
				for sx := sx0; sx < sx1; sx++ {
					sum += uint32(src[row+sx])
					count++
				}
			}
			if count > 0 {
				dst[dstRow+dstX+dx] = byte(sum / count)
			}
		}
	}
}
