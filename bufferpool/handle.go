package bufferpool

import "sync/atomic"

// Handle is a reference-counted I420 buffer. It implements media.Buffer.
// Multiple downstream destinations can share one Handle; the pool reclaims
// it only once every holder has called Release.
type Handle struct {
	width, height uint32
	strideY       uint32
	strideUV      uint32
	y, u, v       []byte
	pool          *Pool
	refs          atomic.Int32
}

func newHandle(width, height uint32, pool *Pool) *Handle {
	cw, ch := chromaSize(width, height)
	return &Handle{
		width:    width,
		height:   height,
		strideY:  width,
		strideUV: cw,
		y:        make([]byte, width*height),
		u:        make([]byte, cw*ch),
		v:        make([]byte, cw*ch),
		pool:     pool,
	}
}

func chromaSize(width, height uint32) (uint32, uint32) {
	return (width + 1) / 2, (height + 1) / 2
}

func (h *Handle) Width() uint32     { return h.width }
func (h *Handle) Height() uint32    { return h.height }
func (h *Handle) Y() []byte         { return h.y }
func (h *Handle) U() []byte         { return h.u }
func (h *Handle) V() []byte         { return h.v }
func (h *Handle) StrideY() uint32   { return h.strideY }
func (h *Handle) StrideU() uint32   { return h.strideUV }
func (h *Handle) StrideV() uint32   { return h.strideUV }

// Retain increments the reference count. Call before handing the buffer to
// an additional holder (e.g. delivering the same composed frame to several
// outputs).
func (h *Handle) Retain() {
	h.refs.Add(1)
}

// Release decrements the reference count and returns the buffer to its
// pool once it reaches zero. Calling Release more times than Retain+initial
// ownership is a caller bug; it is guarded against going negative.
func (h *Handle) Release() {
	for {
		n := h.refs.Load()
		if n <= 0 {
			return
		}
		if h.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				h.pool.put(h)
			}
			return
		}
	}
}
