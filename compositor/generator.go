package compositor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keycodingyfq/soft-compositor/bufferpool"
	"github.com/keycodingyfq/soft-compositor/jobtimer"
	"github.com/keycodingyfq/soft-compositor/layout"
	"github.com/keycodingyfq/soft-compositor/media"
	"github.com/keycodingyfq/soft-compositor/scale"
	"github.com/keycodingyfq/soft-compositor/textoverlay"
	"golang.org/x/sync/errgroup"
)

// maxParallelFetch bounds the errgroup-based parallel input fetch to a
// small, fixed degree of concurrency: the fetch is cheap (a mutex-guarded
// queue pop), so beyond a handful of goroutines the scheduling overhead
// outweighs the win.
const maxParallelFetch = 16

// inputSource is the narrow view of the compositor's input set a Generator
// needs: resolving one input index to its current frame (falling back to
// an avatar, or nil, per the owner's policy) and peeking the front/back
// sync timestamps an input can offer without consuming anything. Defined
// here, implemented by *Compositor, so the generator never depends on the
// concrete input/avatar types it composites (spec.md Design Note 1:
// generators hold a non-owning handle to their data source).
type inputSource interface {
	InputFrame(index uint8, target int64) *media.SoftInputFrame
	PeekSyncWindow(index uint8) (front, back int64, ok bool)
}

// holdTarget and unsyncedTarget are the two sentinel values syncTarget can
// return alongside any non-negative advance target (spec.md §4.3 step 3):
// holdTarget means "a common sync window doesn't exist yet, show each
// synced input's front without advancing it"; unsyncedTarget means "no
// sync-enabled input is present in this solution at all, pop normally."
const (
	holdTarget     int64 = -1
	unsyncedTarget int64 = -2
)

// FrameDestination receives one composed frame per tick it is scheduled
// on. OnFrame must not block for long: it runs on the generator's timer
// goroutine and a slow destination delays every other output sharing that
// generator. Implementations that need to hold the frame past OnFrame
// must call frame.Buffer.Retain() before returning and Release it later.
type FrameDestination interface {
	OnFrame(frame ComposedFrame)
}

// ComposedFrame is one output of a composition pass. Buffer carries one
// reference owned jointly by the generator for the duration of the OnFrame
// call; a destination that wants to keep it must Retain.
type ComposedFrame struct {
	Buffer    media.Buffer
	Width     uint32
	Height    uint32
	TimeStamp int64
}

type outputBinding struct {
	fps      uint32
	interval uint32 // deliver every interval-th tick
	dest     FrameDestination
}

// Generator is SoftFrameGenerator: a fixed-canvas composition pass driven
// by a jobtimer.Timer at maxFps, fanning out to any number of registered
// outputs at quantized sub-multiples of maxFps (spec.md §4.3).
type Generator struct {
	log   *slog.Logger
	owner inputSource

	width, height uint32
	bg            media.YUVColor
	crop          bool
	parallel      bool

	allowedFPS map[uint32]bool
	maxFps     uint32

	pool   *bufferpool.Pool
	scaler scale.Scaler
	text   textoverlay.Drawer
	timer  *jobtimer.Timer

	tick uint64

	outMu   sync.Mutex
	outputs map[uint64]*outputBinding
	nextID  uint64

	cfgMu    sync.Mutex
	solution layout.Solution
}

// GeneratorConfig bundles a Generator's fixed construction parameters.
type GeneratorConfig struct {
	MaxFps, MinFps uint32
	Width, Height  uint32
	Background     media.YUVColor
	Crop           bool
	PoolCap        int
	Scaler         scale.Scaler
	Text           textoverlay.Drawer
	Parallel       bool
}

// NewGenerator creates a Generator bound to owner. The timer is not
// started; call Start.
func NewGenerator(cfg GeneratorConfig, owner inputSource, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Scaler == nil {
		cfg.Scaler = scale.New()
	}
	if cfg.Text == nil {
		cfg.Text = textoverlay.New()
	}
	log = log.With("component", "generator", "max_fps", cfg.MaxFps)

	g := &Generator{
		log:        log,
		owner:      owner,
		width:      cfg.Width,
		height:     cfg.Height,
		bg:         cfg.Background,
		crop:       cfg.Crop,
		parallel:   cfg.Parallel,
		allowedFPS: computeAllowedFPS(cfg.MaxFps, cfg.MinFps, log),
		maxFps:     cfg.MaxFps,
		pool:       bufferpool.New(cfg.PoolCap, log),
		scaler:     cfg.Scaler,
		text:       cfg.Text,
		outputs:    make(map[uint64]*outputBinding),
	}
	g.timer = jobtimer.New(cfg.MaxFps, g)
	return g
}

// computeAllowedFPS builds the set of fps values this generator can serve
// without drift: maxFps itself, and each successive halving of it, down to
// and including minFps, as the precomputed lookup set described in
// spec.md §9's "cleaner design" note. If maxFps/minFps isn't itself a
// power of two, the halving chain never lands on minFps exactly — the
// generator then degrades to supporting minFps alone (spec.md §4.3),
// discarding every intermediate rate the partial chain had built, and
// logs the collapse since it silently shrinks what AddOutput will accept.
func computeAllowedFPS(maxFps, minFps uint32, log *slog.Logger) map[uint32]bool {
	if minFps == 0 || minFps >= maxFps {
		return map[uint32]bool{maxFps: true}
	}
	allowed := map[uint32]bool{maxFps: true}
	f := maxFps
	for f > minFps {
		if f%2 != 0 {
			if log != nil {
				log.Warn("maxFps/minFps is not a power of two, collapsing to minFps only",
					"max_fps", maxFps, "min_fps", minFps)
			}
			return map[uint32]bool{minFps: true}
		}
		f /= 2
		allowed[f] = true
	}
	if f != minFps {
		if log != nil {
			log.Warn("maxFps/minFps is not a power of two, collapsing to minFps only",
				"max_fps", maxFps, "min_fps", minFps)
		}
		return map[uint32]bool{minFps: true}
	}
	return allowed
}

// IsSupported reports whether fps is one this generator can serve exactly.
func (g *Generator) IsSupported(fps uint32) bool {
	return fps > 0 && g.allowedFPS[fps]
}

// Start begins the generator's timer.
func (g *Generator) Start() { g.timer.Start() }

// Close stops the generator's timer. No OnFrame call can be in flight once
// Close returns.
func (g *Generator) Close() {
	g.timer.Stop()
}

// AddOutput registers dest to receive frames at fps, which must satisfy
// IsSupported. Returns the output id to pass to RemoveOutput.
func (g *Generator) AddOutput(fps uint32, dest FrameDestination) (uint64, error) {
	if !g.IsSupported(fps) {
		return 0, fmt.Errorf("%w: %d (max %d)", ErrUnsupportedFPS, fps, g.maxFps)
	}
	g.outMu.Lock()
	defer g.outMu.Unlock()
	g.nextID++
	id := g.nextID
	g.outputs[id] = &outputBinding{
		fps:      fps,
		interval: g.maxFps / fps,
		dest:     dest,
	}
	return id, nil
}

// RemoveOutput unregisters an output previously returned by AddOutput.
func (g *Generator) RemoveOutput(id uint64) error {
	g.outMu.Lock()
	defer g.outMu.Unlock()
	if _, ok := g.outputs[id]; !ok {
		return ErrOutputNotFound
	}
	delete(g.outputs, id)
	return nil
}

// HasOutputs reports whether any output is currently registered.
func (g *Generator) HasOutputs() bool {
	g.outMu.Lock()
	defer g.outMu.Unlock()
	return len(g.outputs) > 0
}

// UpdateLayoutSolution replaces the arrangement painted on the next tick.
// The swap is a single pointer write under cfgMu so a composition
// in flight always sees either the old or the new solution in full, never
// a partial update (spec.md §4.3 layout double-buffering).
func (g *Generator) UpdateLayoutSolution(sol layout.Solution) {
	g.cfgMu.Lock()
	g.solution = sol
	g.cfgMu.Unlock()
}

// DrawText configures the text overlay drawn on every subsequent frame.
func (g *Generator) DrawText(spec string) {
	g.text.SetText(spec)
	g.text.Enable(true)
}

// ClearText disables the text overlay.
func (g *Generator) ClearText() {
	g.text.Enable(false)
}

// OnTimeout implements jobtimer.Sink. It runs the composition pass for
// this tick and fans the result out to every output whose interval
// divides the current tick count.
func (g *Generator) OnTimeout() {
	g.outMu.Lock()
	due := make([]*outputBinding, 0, len(g.outputs))
	for _, ob := range g.outputs {
		if g.tick%uint64(ob.interval) == 0 {
			due = append(due, ob)
		}
	}
	g.tick++
	g.outMu.Unlock()

	if len(due) == 0 {
		return
	}

	frame, ok := g.composite()
	if !ok {
		return
	}

	for _, ob := range due {
		ob.dest.OnFrame(frame)
	}
	frame.Buffer.Release()
}

// composite runs one full composition pass: acquire a canvas, fill the
// background, paint every region in the current layout solution, draw the
// text overlay, and stamp a presentation timestamp. It returns ok=false if
// no canvas buffer was available (spec.md §4.3 step 1: a full canvas pool
// fails the tick, it does not block it).
func (g *Generator) composite() (ComposedFrame, bool) {
	canvas := g.pool.Get(g.width, g.height)
	if canvas == nil {
		g.log.Warn("skipping tick, canvas pool exhausted")
		return ComposedFrame{}, false
	}

	fillColor(canvas, g.bg)

	g.cfgMu.Lock()
	solution := g.solution
	g.cfgMu.Unlock()

	if len(solution) > 0 {
		target := g.syncTarget(solution)
		frames := g.fetchInputs(solution, target)
		for i, entry := range solution {
			g.paint(canvas, entry, frames[i])
		}
	}

	g.text.Draw(canvas)

	return ComposedFrame{
		Buffer:    canvas,
		Width:     g.width,
		Height:    g.height,
		TimeStamp: time.Now().UnixMilli() * 90,
	}, true
}

// syncTarget computes the cross-input alignment point for one composition
// pass, following spec.md §4.3 step 3: min_sync is the latest of every
// synced input's front timestamp, max_sync is the earliest of every synced
// input's back timestamp. If no input in this solution is sync-enabled,
// there is nothing to align (unsyncedTarget). If min_sync > max_sync, the
// inputs' queues don't yet share a common window, so every synced input
// should hold at its front rather than guess (holdTarget). Otherwise
// max_sync is the point every synced input should advance to, landing them
// all on their latest frame within the common window.
func (g *Generator) syncTarget(sol layout.Solution) int64 {
	var minSync, maxSync int64
	seen := false
	for _, entry := range sol {
		front, back, ok := g.owner.PeekSyncWindow(entry.InputIndex)
		if !ok {
			continue
		}
		if !seen {
			minSync, maxSync = front, back
			seen = true
			continue
		}
		if front > minSync {
			minSync = front
		}
		if back < maxSync {
			maxSync = back
		}
	}
	if !seen {
		return unsyncedTarget
	}
	if minSync > maxSync {
		return holdTarget
	}
	return maxSync
}

// fetchInputs resolves every region's input frame. When g.parallel is set
// and there is more than one region, the independent per-input lookups run
// concurrently (bounded by maxParallelFetch) via errgroup; the canvas
// paint step afterward stays strictly sequential in solution order so
// overlapping regions composite identically to the non-parallel path.
func (g *Generator) fetchInputs(sol layout.Solution, target int64) []*media.SoftInputFrame {
	frames := make([]*media.SoftInputFrame, len(sol))
	if !g.parallel || len(sol) < 2 {
		for i, entry := range sol {
			frames[i] = g.owner.InputFrame(entry.InputIndex, target)
		}
		return frames
	}

	var eg errgroup.Group
	eg.SetLimit(maxParallelFetch)
	for i, entry := range sol {
		i, entry := i, entry
		eg.Go(func() error {
			frames[i] = g.owner.InputFrame(entry.InputIndex, target)
			return nil
		})
	}
	_ = eg.Wait() // fetch functions never return an error
	return frames
}

// paint places one region's frame onto canvas and releases the generator's
// reference to it. A nil frame (inactive input with no avatar, or an
// avatar load failure) leaves the region showing whatever fillColor left
// there.
func (g *Generator) paint(canvas media.Buffer, entry layout.LayoutEntry, frame *media.SoftInputFrame) {
	if frame == nil {
		return
	}
	defer frame.Buffer.Release()

	dst := layout.DestRect(entry.Region.Rect, g.width, g.height)
	if dst.W == 0 || dst.H == 0 {
		return
	}
	fit := layout.Fit(frame.Buffer.Width(), frame.Buffer.Height(), dst, g.crop)
	if fit.Src.W == 0 || fit.Src.H == 0 || fit.Dst.W == 0 || fit.Dst.H == 0 {
		return
	}
	if err := g.scaler.Scale(frame.Buffer, fit.Src.X, fit.Src.Y, fit.Src.W, fit.Src.H,
		canvas, fit.Dst.X, fit.Dst.Y, fit.Dst.W, fit.Dst.H); err != nil {
		g.log.Warn("scale failed", "input", entry.InputIndex, "error", err)
	}
}

// fillColor seeds every plane of canvas with a flat color, the backdrop a
// tick's empty regions show through as.
func fillColor(canvas media.Buffer, c media.YUVColor) {
	fill(canvas.Y(), c.Y)
	fill(canvas.U(), c.Cb)
	fill(canvas.V(), c.Cr)
}

func fill(b []byte, v uint8) {
	for i := range b {
		b[i] = v
	}
}
