package compositor

import (
	"log/slog"
	"sync"

	"github.com/keycodingyfq/soft-compositor/bufferpool"
	"github.com/keycodingyfq/soft-compositor/frameconv"
	"github.com/keycodingyfq/soft-compositor/media"
)

// MaxQueueSize is the maximum number of frames a SoftInput will hold at
// once (spec.md §3 invariant 1). It is small and fixed: the input queue
// exists to absorb jitter and provide a short sync window, not to buffer
// for playback.
const MaxQueueSize = 5

// SoftInput is a per-participant bounded frame queue with active/inactive
// state and cross-input sync metadata (spec.md §4.1).
type SoftInput struct {
	log  *slog.Logger
	pool *bufferpool.Pool
	conv *frameconv.Converter

	mu                sync.Mutex
	active            bool
	syncEnabled       bool // demoted permanently to false on overflow
	frameSyncEnabled  bool // mirrors the last pushed frame's SyncEnabled
	queue             []*media.SoftInputFrame
}

// NewSoftInput creates an inactive, sync-capable input queue. If log is
// nil, slog.Default() is used.
func NewSoftInput(log *slog.Logger) *SoftInput {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "soft-input")
	return &SoftInput{
		log:         log,
		pool:        bufferpool.New(MaxQueueSize, log),
		conv:        frameconv.New(),
		syncEnabled: true,
	}
}

// SetActive marks the input active or inactive. Deactivating drops and
// releases any queued frames: an inactive input contributes nothing (or an
// avatar) to composition, so there is nothing worth keeping buffered.
func (s *SoftInput) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	if !active {
		s.clearQueueLocked()
	}
}

// IsActive reports whether activateInput has been called more recently
// than deActivateInput.
func (s *SoftInput) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// PushInput validates frame, converts it into a pooled buffer, and
// enqueues it. Invalid frames and frames pushed to an inactive input are
// silently dropped (spec taxonomy: InvalidInput). A full queue is cleared
// and the input is permanently demoted to unsynchronized mode (spec
// taxonomy: SyncOverflow) — the assumption is that a full queue means the
// upstream is too far out of phase for sync to succeed, and correctness of
// sync would only introduce stalls.
func (s *SoftInput) PushInput(frame *media.Frame) {
	if err := frame.Validate(); err != nil {
		s.log.Debug("dropping frame", "reason", "invalid", "error", err)
		return
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		s.log.Debug("dropping frame", "reason", "inactive")
		return
	}
	if len(s.queue) == MaxQueueSize {
		s.log.Warn("input queue full, demoting to unsynced", "max", MaxQueueSize)
		s.clearQueueLocked()
		s.syncEnabled = false
	}
	s.mu.Unlock()

	// Convert outside the lock so slow copies don't starve readers
	// (spec.md §4.1 concurrency note).
	buf := s.pool.Get(frame.Width, frame.Height)
	if buf == nil {
		s.log.Warn("dropping frame", "reason", "pool exhausted")
		return
	}
	if err := s.conv.Convert(frame, buf); err != nil {
		s.log.Error("dropping frame", "reason", "conversion failed", "error", err)
		buf.Release()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		buf.Release()
		return
	}

	s.frameSyncEnabled = frame.SyncEnabled
	if !s.syncEnabled || !s.frameSyncEnabled {
		// Either this input was already desynced, or this frame itself
		// carries no sync timestamp: clear so front() always refers to a
		// recent frame (spec.md §4.1).
		s.clearQueueLocked()
	}

	s.queue = append(s.queue, &media.SoftInputFrame{
		Buffer:        buf,
		TimeStamp:     frame.TimeStamp,
		SyncEnabled:   frame.SyncEnabled,
		SyncTimeStamp: frame.SyncTimeStamp,
	})
}

// clearQueueLocked releases every queued buffer and empties the queue.
// Caller must hold s.mu.
func (s *SoftInput) clearQueueLocked() {
	for _, f := range s.queue {
		f.Buffer.Release()
	}
	s.queue = s.queue[:0]
}

// PopInput returns the front frame. When it is the only frame in the
// queue it is returned without removing it — a single frame is the
// "current still image" of that input, and removing it would force the
// mixer to paint black when a participant pauses. With more than one
// frame queued, the front is popped and advances the stream.
//
// The returned frame's Buffer carries a reference the caller owns and must
// Release after use.
func (s *SoftInput) PopInput() *media.SoftInputFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || len(s.queue) == 0 {
		return nil
	}

	front := s.queue[0]
	if len(s.queue) > 1 {
		s.queue = s.queue[1:]
		return front // sole ownership transfers to the caller
	}

	front.Buffer.Retain()
	return front
}

// Front returns the front frame without removing it. The returned frame's
// Buffer carries a reference the caller owns and must Release after use.
func (s *SoftInput) Front() *media.SoftInputFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || len(s.queue) == 0 {
		return nil
	}
	f := s.queue[0]
	f.Buffer.Retain()
	return f
}

// Back returns the back (most recently pushed) frame without removing it.
// The returned frame's Buffer carries a reference the caller owns and must
// Release after use.
func (s *SoftInput) Back() *media.SoftInputFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || len(s.queue) == 0 {
		return nil
	}
	f := s.queue[len(s.queue)-1]
	f.Buffer.Retain()
	return f
}

// GetSyncFrame returns the sync-aligned frame for target. If target is -1,
// it returns the front frame without advancing. Otherwise it drops frames
// from the front while the front's SyncTimeStamp is behind target and more
// than one frame remains queued — the queue-size floor of 1 preserves the
// "current still image" invariant under sync-driven advance.
//
// The returned frame's Buffer carries a reference the caller owns and must
// Release after use.
func (s *SoftInput) GetSyncFrame(target int64) *media.SoftInputFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || len(s.queue) == 0 {
		return nil
	}
	if target == -1 {
		f := s.queue[0]
		f.Buffer.Retain()
		return f
	}

	for len(s.queue) > 1 && s.queue[0].SyncTimeStamp < target {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		dropped.Buffer.Release()
	}

	f := s.queue[0]
	f.Buffer.Retain()
	return f
}

// IsSyncEnabled reports whether this input currently participates in
// cross-input sync: both the input-level flag (cleared permanently on
// overflow) and the most recently pushed frame's own SyncEnabled bit must
// be set.
func (s *SoftInput) IsSyncEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncEnabled && s.frameSyncEnabled
}

// Len reports the current queue depth, for tests and diagnostics.
func (s *SoftInput) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close releases all queued buffers. Call once the input is permanently
// retired (compositor shutdown).
func (s *SoftInput) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearQueueLocked()
}
