// Package bufferpool implements I420BufferManager: a bounded pool of
// reusable planar I420 frame buffers. Buffers are handed out on demand and
// reclaimed automatically once every holder has released its reference.
package bufferpool

import (
	"log/slog"
	"sync"
)

// Pool is a bounded pool of I420 buffers of a single, possibly-changing,
// size. Requesting a buffer at a new size discards any pooled buffers of
// the old size (spec.md §3 invariant 3: the pool returns a buffer of
// exactly the requested dimensions).
//
// cap is the maximum number of buffers the pool will have outstanding at
// once; Get returns nil once that many are checked out and none are free,
// matching spec.md §5's "buffer-pool wait when exhausted; returns 'no free
// buffer' rather than blocking." cap == 0 means unbounded, used by the
// avatar cache (avatar.Manager), which holds one buffer per cached URL
// until that URL is evicted.
type Pool struct {
	log *slog.Logger

	mu          sync.Mutex
	cap         int
	width       uint32
	height      uint32
	free        []*Handle
	outstanding int
}

// New creates a pool bounded to cap outstanding buffers (0 = unbounded).
// If log is nil, slog.Default() is used.
func New(cap int, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		log: log.With("component", "bufferpool"),
		cap: cap,
	}
}

// Get returns a buffer of exactly width x height, either recycled from the
// pool or freshly allocated, or nil if the pool is bounded and exhausted.
func (p *Pool) Get(width, height uint32) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	if width != p.width || height != p.height {
		if len(p.free) > 0 {
			p.log.Debug("discarding pool on size change",
				"old_w", p.width, "old_h", p.height,
				"new_w", width, "new_h", height,
				"discarded", len(p.free))
		}
		p.free = nil
		p.width, p.height = width, height
	}

	var h *Handle
	if n := len(p.free); n > 0 {
		h = p.free[n-1]
		p.free = p.free[:n-1]
	} else if p.cap == 0 || p.outstanding < p.cap {
		h = newHandle(width, height, p)
	} else {
		p.log.Warn("buffer pool exhausted", "cap", p.cap, "width", width, "height", height)
		return nil
	}

	p.outstanding++
	h.refs.Store(1)
	return h
}

// put returns a buffer to the free list if it still matches the pool's
// current dimensions; a stale-size buffer is dropped for the GC to reclaim.
func (p *Pool) put(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outstanding > 0 {
		p.outstanding--
	}
	if h.width != p.width || h.height != p.height {
		return
	}
	p.free = append(p.free, h)
}
