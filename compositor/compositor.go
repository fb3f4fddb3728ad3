// Package compositor implements SoftVideoCompositor: the top-level
// software video mixer that owns a fixed set of per-participant input
// queues, an avatar fallback cache, and a small family of frame
// generators producing composed output at different frame-rate bands.
package compositor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/keycodingyfq/soft-compositor/avatar"
	"github.com/keycodingyfq/soft-compositor/layout"
	"github.com/keycodingyfq/soft-compositor/media"
)

// Band describes one generator's frame-rate range: it ticks at MaxFps and
// can serve any output whose requested fps is a power-of-two subdivision
// of MaxFps down to MinFps (spec.md §4.3).
type Band struct {
	MaxFps uint32
	MinFps uint32
}

// DefaultBands is the two-tier generator family the original compositor
// ships with: a high band for full-motion video and a low band for
// thumbnail-grade or bandwidth-constrained outputs.
var DefaultBands = []Band{
	{MaxFps: 60, MinFps: 15},
	{MaxFps: 48, MinFps: 6},
}

// Config bundles a Compositor's construction parameters.
type Config struct {
	MaxInput   uint8
	Width      uint32
	Height     uint32
	Background media.YUVColor
	Crop       bool
	Bands      []Band // defaults to DefaultBands if nil
	Parallel   bool   // opt into errgroup-based parallel input fetch per tick
}

// Compositor is SoftVideoCompositor. It is safe for concurrent use.
type Compositor struct {
	log *slog.Logger

	maxInput uint8
	inputs   []*SoftInput
	avatars  *avatar.Manager

	mu         sync.RWMutex
	generators []*Generator
	closed     bool
}

// New constructs a Compositor with maxInput inputs and starts its
// generators. Call Close to release every resource.
func New(cfg Config, log *slog.Logger) *Compositor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "compositor")

	bands := cfg.Bands
	if bands == nil {
		bands = DefaultBands
	}

	c := &Compositor{
		log:      log,
		maxInput: cfg.MaxInput,
		inputs:   make([]*SoftInput, cfg.MaxInput),
		avatars:  avatar.New(cfg.MaxInput, log),
	}
	for i := range c.inputs {
		c.inputs[i] = NewSoftInput(log)
	}

	for _, band := range bands {
		gen := NewGenerator(GeneratorConfig{
			MaxFps:     band.MaxFps,
			MinFps:     band.MinFps,
			Width:      cfg.Width,
			Height:     cfg.Height,
			Background: cfg.Background,
			Crop:       cfg.Crop,
			PoolCap:    30,
			Parallel:   cfg.Parallel,
		}, c, log)
		gen.Start()
		c.generators = append(c.generators, gen)
	}

	return c
}

// ActivateInput marks index active, ready to receive pushed frames and to
// be composited in place of its avatar.
func (c *Compositor) ActivateInput(index uint8) error {
	in, err := c.input(index)
	if err != nil {
		return err
	}
	in.SetActive(true)
	return nil
}

// DeActivateInput marks index inactive. Its layout regions, if any, fall
// back to its bound avatar (or blank, if none is bound).
func (c *Compositor) DeActivateInput(index uint8) error {
	in, err := c.input(index)
	if err != nil {
		return err
	}
	in.SetActive(false)
	return nil
}

// PushInput delivers one decoded frame to index's queue.
func (c *Compositor) PushInput(index uint8, frame *media.Frame) error {
	in, err := c.input(index)
	if err != nil {
		return err
	}
	in.PushInput(frame)
	return nil
}

// SetAvatar binds index's fallback image, shown whenever the input is
// inactive.
func (c *Compositor) SetAvatar(index uint8, url string) error {
	if index >= c.maxInput {
		return ErrInputOutOfRange
	}
	c.avatars.SetAvatar(index, url)
	return nil
}

// UnsetAvatar removes index's fallback image binding.
func (c *Compositor) UnsetAvatar(index uint8) error {
	if index >= c.maxInput {
		return ErrInputOutOfRange
	}
	c.avatars.UnsetAvatar(index)
	return nil
}

// AddOutput registers dest on whichever generator can serve fps exactly,
// trying bands in construction order. Returns the (generator, output id)
// pair RemoveOutput needs.
func (c *Compositor) AddOutput(fps uint32, dest FrameDestination) (genIdx int, outID uint64, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, 0, ErrClosed
	}
	for i, gen := range c.generators {
		if gen.IsSupported(fps) {
			id, err := gen.AddOutput(fps, dest)
			return i, id, err
		}
	}
	c.log.Error("no generator accepts output", "fps", fps)
	return 0, 0, fmt.Errorf("%w: %d", ErrUnsupportedFPS, fps)
}

// RemoveOutput unregisters an output previously returned by AddOutput.
func (c *Compositor) RemoveOutput(genIdx int, outID uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if genIdx < 0 || genIdx >= len(c.generators) {
		return ErrOutputNotFound
	}
	return c.generators[genIdx].RemoveOutput(outID)
}

// UpdateLayoutSolution applies sol to every generator. Each generator's
// regions are painted from the same solution; generators that differ only
// in frame rate always show the same arrangement.
func (c *Compositor) UpdateLayoutSolution(sol layout.Solution) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, gen := range c.generators {
		gen.UpdateLayoutSolution(sol)
	}
}

// DrawText enables the text overlay on every generator.
func (c *Compositor) DrawText(spec string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, gen := range c.generators {
		gen.DrawText(spec)
	}
}

// ClearText disables the text overlay on every generator.
func (c *Compositor) ClearText() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, gen := range c.generators {
		gen.ClearText()
	}
}

// UpdateRootSize is rejected: canvas dimensions are fixed at construction
// (spec taxonomy item 6, ConfigurationIgnored). Tearing down and
// recreating the Compositor is the supported path to a new output size.
func (c *Compositor) UpdateRootSize(width, height uint32) error {
	c.log.Warn("UpdateRootSize is unsupported, canvas size is fixed at construction",
		"requested_w", width, "requested_h", height)
	return nil
}

// UpdateBackgroundColor is rejected for the same reason as UpdateRootSize.
func (c *Compositor) UpdateBackgroundColor(color media.YUVColor) error {
	c.log.Warn("UpdateBackgroundColor is unsupported, background is fixed at construction")
	return nil
}

// Close stops every generator's timer and releases all queued input
// buffers. Generators are stopped first so no composition pass can be in
// flight while inputs are being drained (construction/destruction
// ordering per spec.md §5).
func (c *Compositor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, gen := range c.generators {
		gen.Close()
	}
	for _, in := range c.inputs {
		in.Close()
	}
}

func (c *Compositor) input(index uint8) (*SoftInput, error) {
	if index >= c.maxInput {
		return nil, ErrInputOutOfRange
	}
	return c.inputs[index], nil
}

// InputFrame implements inputSource for the generators this Compositor
// owns. An avatar only ever substitutes for an inactive input — once
// active, this returns exactly what the input's own queue produces, nil
// included, matching the original's getSyncInputFrame (which returns the
// avatar solely from its initial !isActive branch, never as a fallback
// for an active input's empty result).
//
// target is the generator's cross-input sync decision for this tick
// (holdTarget, unsyncedTarget, or an advance-to timestamp): it only
// governs inputs that are themselves sync-enabled. An input that isn't
// participating in sync — or when no input in the solution is — always
// just pops its queue normally (spec.md §4.3 step 3).
func (c *Compositor) InputFrame(index uint8, target int64) *media.SoftInputFrame {
	if index >= c.maxInput {
		return nil
	}
	in := c.inputs[index]
	if !in.IsActive() {
		return c.avatars.GetAvatarFrame(index)
	}
	switch {
	case !in.IsSyncEnabled() || target == unsyncedTarget:
		return in.PopInput()
	case target == holdTarget:
		return in.GetSyncFrame(holdTarget)
	default:
		return in.GetSyncFrame(target)
	}
}

// PeekSyncWindow implements inputSource: for an active, sync-enabled input
// it reports its current front and back sync timestamps without consuming
// any frame from its queue, so the generator can compute min_sync/max_sync
// across every synced input in a solution before resolving any of them.
func (c *Compositor) PeekSyncWindow(index uint8) (front, back int64, ok bool) {
	if index >= c.maxInput {
		return 0, 0, false
	}
	in := c.inputs[index]
	if !in.IsActive() || !in.IsSyncEnabled() {
		return 0, 0, false
	}
	ff := in.Front()
	if ff == nil {
		return 0, 0, false
	}
	front = ff.SyncTimeStamp
	ff.Buffer.Release()

	bf := in.Back()
	if bf == nil {
		return 0, 0, false
	}
	back = bf.SyncTimeStamp
	bf.Buffer.Release()

	return front, back, true
}
