// Package captions bridges a decoded closed-caption stream into the
// compositor's text overlay: each caption frame becomes the overlay text
// of the whole composed output, whatever its channel, until the next
// caption or an explicit clear.
package captions

import (
	"context"
	"log/slog"

	"github.com/zsiec/ccx"
)

// bridgeBufferSize mirrors the teacher's per-subscriber caption channel
// depth (internal/distribution/moq_session.go's viewerCaptionBuffer):
// captions arrive far slower than video, so a small buffer is enough to
// ride out a brief stall without ever building up a backlog of stale text.
const bridgeBufferSize = 16

// Overlay is the subset of a compositor a Bridge drives: the text-overlay
// controls exposed by *compositor.Compositor.
type Overlay interface {
	DrawText(spec string)
	ClearText()
}

// Bridge forwards decoded caption frames onto an Overlay. Empty caption
// text clears the overlay instead of drawing a blank string, matching how
// caption decoders signal "channel cleared."
type Bridge struct {
	log     *slog.Logger
	overlay Overlay
	in      chan *ccx.CaptionFrame

	dropped int64
}

// NewBridge creates a Bridge that drives overlay. If log is nil,
// slog.Default() is used. Call Run to start forwarding.
func NewBridge(overlay Overlay, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		log:     log.With("component", "captions-bridge"),
		overlay: overlay,
		in:      make(chan *ccx.CaptionFrame, bridgeBufferSize),
	}
}

// Push enqueues a decoded caption frame for delivery. If the bridge's
// buffer is full, the frame is dropped: a missed caption line is far less
// disruptive than blocking the decoder that produced it.
func (b *Bridge) Push(frame *ccx.CaptionFrame) {
	select {
	case b.in <- frame:
	default:
		b.dropped++
		b.log.Debug("caption dropped, bridge buffer full", "channel", frame.Channel)
	}
}

// Dropped reports how many caption frames have been dropped for buffer
// overflow since the bridge was created.
func (b *Bridge) Dropped() int64 { return b.dropped }

// Run forwards caption frames to the overlay until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case frame := <-b.in:
			if frame.Text == "" {
				b.overlay.ClearText()
				continue
			}
			b.overlay.DrawText(frame.Text)
		case <-ctx.Done():
			return
		}
	}
}
