// Package avatar implements AvatarManager: a lazy cache of decoded static
// placeholder images keyed by URL, with an index->URL binding layer so an
// inactive input index can be mapped to a substitute image.
package avatar

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/keycodingyfq/soft-compositor/bufferpool"
	"github.com/keycodingyfq/soft-compositor/media"
)

// Manager is the AvatarManager component of spec.md §4.2. It is safe for
// concurrent use.
type Manager struct {
	log *slog.Logger

	mu     sync.RWMutex
	inputs map[uint8]string             // index -> url
	frames map[string]*media.SoftInputFrame // url -> decoded frame

	alloc *bufferpool.Pool // unbounded allocator: one buffer per cached URL, released on eviction
}

// New creates an empty avatar cache sized for up to maxInput bound indices.
// maxInput is advisory only (Go maps need no capacity hint to behave
// correctly) and is kept to mirror the constructor signature of the
// original AvatarManager(uint8 size).
func New(maxInput uint8, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:    log.With("component", "avatar"),
		inputs: make(map[uint8]string, maxInput),
		frames: make(map[string]*media.SoftInputFrame),
		alloc:  bufferpool.New(0, log),
	}
}

// SetAvatar rebinds index -> url. If the index's previous URL is no longer
// referenced by any other index, its cached frame (if any) is evicted.
func (m *Manager) SetAvatar(index uint8, url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, had := m.inputs[index]
	if had && old == url {
		return true
	}
	m.inputs[index] = url
	m.log.Debug("setAvatar", "index", index, "url", url)

	if had {
		m.evictIfUnreferencedLocked(old)
	}
	return true
}

// UnsetAvatar removes index's binding and evicts its URL's cached frame if
// no other index still references it.
func (m *Manager) UnsetAvatar(index uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	url, ok := m.inputs[index]
	if !ok {
		return true
	}
	delete(m.inputs, index)
	m.log.Debug("unsetAvatar", "index", index)
	m.evictIfUnreferencedLocked(url)
	return true
}

// evictIfUnreferencedLocked releases and removes url's cached frame if no
// remaining entry in m.inputs maps to it. Caller must hold m.mu for
// writing.
func (m *Manager) evictIfUnreferencedLocked(url string) {
	for _, u := range m.inputs {
		if u == url {
			return
		}
	}
	if frame, ok := m.frames[url]; ok {
		frame.Buffer.Release()
		delete(m.frames, url)
	}
}

// GetAvatarFrame returns index's bound avatar image, lazily decoding and
// caching it on first use. It returns nil on any parse, size, or I/O
// error — spec taxonomy item 4, AvatarLoadFailure: the caller treats a nil
// result as "this region is blank for this tick".
//
// The returned frame's Buffer carries a reference the caller owns and must
// Release after use, same as every other query method in this repository
// that hands back a pooled buffer: the cache keeps its own reference, so a
// caller's Release never evicts the entry.
func (m *Manager) GetAvatarFrame(index uint8) *media.SoftInputFrame {
	m.mu.Lock()
	defer m.mu.Unlock()

	url, ok := m.inputs[index]
	if !ok {
		return nil
	}
	if frame, cached := m.frames[url]; cached {
		frame.Buffer.Retain()
		return frame
	}

	frame, err := m.loadImage(url)
	if err != nil {
		m.log.Warn("avatar load failed", "index", index, "url", url, "error", err)
		return nil
	}
	m.frames[url] = frame
	frame.Buffer.Retain()
	return frame
}

// loadImage parses url for its embedded WxH, reads the raw I420 payload
// from the filesystem, and copies it into a pooled buffer.
func (m *Manager) loadImage(url string) (*media.SoftInputFrame, error) {
	width, height, err := parseImageSize(url)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(url)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	want := media.I420PayloadSize(width, height)
	if uint32(len(data)) != want {
		return nil, fmt.Errorf("avatar %s: size %d, expected %d for %dx%d", url, len(data), want, width, height)
	}

	buf := m.alloc.Get(width, height)
	ySize := int(width * height)
	cw, ch := media.ChromaSize(width, height)
	cSize := int(cw * ch)

	copy(buf.Y(), data[:ySize])
	copy(buf.U(), data[ySize:ySize+cSize])
	copy(buf.V(), data[ySize+cSize:ySize+2*cSize])

	return &media.SoftInputFrame{Buffer: buf}, nil
}

// parseImageSize extracts W and H from a URL matching the literal pattern
// "<prefix>.<W>x<H>.<ext>": the first '.' opens the width, an 'x' after it
// separates width from height, and the next '.' after that closes the
// height (spec.md §4.2/§6).
func parseImageSize(url string) (width, height uint32, err error) {
	begin := strings.IndexByte(url, '.')
	if begin < 0 {
		return 0, 0, fmt.Errorf("avatar: no size in url %q", url)
	}

	end := strings.IndexByte(url[begin:], 'x')
	if end < 0 {
		return 0, 0, fmt.Errorf("avatar: no size in url %q", url)
	}
	end += begin

	w, err := strconv.ParseUint(url[begin+1:end], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("avatar: invalid width in url %q: %w", url, err)
	}

	begin2 := end
	end2 := strings.IndexByte(url[begin2:], '.')
	if end2 < 0 {
		return 0, 0, fmt.Errorf("avatar: no size in url %q", url)
	}
	end2 += begin2

	h, err := strconv.ParseUint(url[begin2+1:end2], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("avatar: invalid height in url %q: %w", url, err)
	}

	return uint32(w), uint32(h), nil
}
