package frameconv

import (
	"testing"

	"github.com/keycodingyfq/soft-compositor/bufferpool"
	"github.com/keycodingyfq/soft-compositor/media"
)

func TestConvertCopiesPlanes(t *testing.T) {
	t.Parallel()

	const w, h = 4, 4
	src := &media.Frame{
		Format: media.FormatI420,
		Width:  w, Height: h,
		Y: bytesOf(w*h, 0x10),
		U: bytesOf(2*2, 0x80),
		V: bytesOf(2*2, 0x80),
	}

	pool := bufferpool.New(0, nil)
	dst := pool.Get(w, h)
	defer dst.Release()

	if err := New().Convert(src, dst); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for i, b := range dst.Y() {
		if b != 0x10 {
			t.Fatalf("Y[%d] = %#x, want 0x10", i, b)
		}
	}
}

func TestConvertRejectsSizeMismatch(t *testing.T) {
	t.Parallel()

	src := &media.Frame{Format: media.FormatI420, Width: 8, Height: 8,
		Y: bytesOf(64, 0), U: bytesOf(16, 0), V: bytesOf(16, 0)}

	pool := bufferpool.New(0, nil)
	dst := pool.Get(4, 4)
	defer dst.Release()

	if err := New().Convert(src, dst); err == nil {
		t.Fatal("expected an error converting into a differently sized buffer")
	}
}

func bytesOf(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}
