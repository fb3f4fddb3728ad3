package scale

import (
	"testing"

	"github.com/keycodingyfq/soft-compositor/bufferpool"
)

func TestScaleDownsamplesFlatColorUnchanged(t *testing.T) {
	t.Parallel()

	pool := bufferpool.New(0, nil)
	src := pool.Get(64, 64)
	defer src.Release()
	for i := range src.Y() {
		src.Y()[i] = 200
	}
	for i := range src.U() {
		src.U()[i] = 90
		src.V()[i] = 90
	}

	dst := pool.Get(32, 32)
	defer dst.Release()
	// zero the new buffer so we can tell it was actually written
	for i := range dst.Y() {
		dst.Y()[i] = 0
	}

	if err := New().Scale(src, 0, 0, 64, 64, dst, 0, 0, 32, 32); err != nil {
		t.Fatalf("Scale: %v", err)
	}

	for i, b := range dst.Y() {
		if b != 200 {
			t.Fatalf("Y[%d] = %d, want 200 (box filter of a flat field)", i, b)
		}
	}
	for i, b := range dst.U() {
		if b != 90 {
			t.Fatalf("U[%d] = %d, want 90", i, b)
		}
	}
}

func TestScaleIntoSubRegionLeavesRestUntouched(t *testing.T) {
	t.Parallel()

	pool := bufferpool.New(0, nil)
	src := pool.Get(16, 16)
	defer src.Release()
	for i := range src.Y() {
		src.Y()[i] = 255
	}

	dst := pool.Get(16, 16)
	defer dst.Release()
	// dst.Y starts zeroed by allocation.

	if err := New().Scale(src, 0, 0, 8, 8, dst, 4, 4, 8, 8); err != nil {
		t.Fatalf("Scale: %v", err)
	}

	if dst.Y()[0] != 0 {
		t.Fatalf("pixel outside the destination rectangle was modified")
	}
	if dst.Y()[4*16+4] != 255 {
		t.Fatalf("top-left pixel of the destination rectangle = %d, want 255", dst.Y()[4*16+4])
	}
}

func TestScaleZeroSizeIsNoOp(t *testing.T) {
	t.Parallel()

	pool := bufferpool.New(0, nil)
	src := pool.Get(4, 4)
	defer src.Release()
	dst := pool.Get(4, 4)
	defer dst.Release()

	if err := New().Scale(src, 0, 0, 0, 0, dst, 0, 0, 4, 4); err != nil {
		t.Fatalf("Scale: %v", err)
	}
}
