package compositor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/keycodingyfq/soft-compositor/layout"
	"github.com/keycodingyfq/soft-compositor/media"
)

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c := New(Config{
		MaxInput: 4,
		Width:    16,
		Height:   16,
		Bands:    []Band{{MaxFps: 30, MinFps: 15}},
	}, nil)
	t.Cleanup(c.Close)
	return c
}

func TestActivateAndPushInput(t *testing.T) {
	t.Parallel()

	c := newTestCompositor(t)
	if err := c.ActivateInput(0); err != nil {
		t.Fatalf("ActivateInput: %v", err)
	}
	if err := c.PushInput(0, testFrame(16, 16, 0, false, 0)); err != nil {
		t.Fatalf("PushInput: %v", err)
	}

	f := c.InputFrame(0, -1)
	if f == nil {
		t.Fatal("InputFrame returned nil for an active input with a pushed frame")
	}
	f.Buffer.Release()
}

func TestInputOutOfRange(t *testing.T) {
	t.Parallel()

	c := newTestCompositor(t)
	if err := c.ActivateInput(200); err != ErrInputOutOfRange {
		t.Fatalf("ActivateInput(200) = %v, want ErrInputOutOfRange", err)
	}
}

func TestInactiveInputFallsBackToAvatar(t *testing.T) {
	t.Parallel()

	c := newTestCompositor(t)
	// No avatar bound, input never activated: must be nil, not a crash.
	if f := c.InputFrame(1, -1); f != nil {
		t.Fatal("expected nil for an inactive input with no avatar bound")
	}

	// With an avatar bound, the same inactive input yields the avatar image.
	path := filepath.Join(t.TempDir(), "avatar.8x8.i420")
	if err := os.WriteFile(path, make([]byte, media.I420PayloadSize(8, 8)), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := c.SetAvatar(1, path); err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}
	f := c.InputFrame(1, -1)
	if f == nil {
		t.Fatal("expected the bound avatar for an inactive input")
	}
	defer f.Buffer.Release()
	if f.Buffer.Width() != 8 || f.Buffer.Height() != 8 {
		t.Fatalf("avatar size = %dx%d, want 8x8", f.Buffer.Width(), f.Buffer.Height())
	}
}

// TestActiveInputNeverFallsBackToAvatar covers the case an active input's
// own queue has nothing to offer yet (no frame pushed since activation):
// InputFrame must return nil, not substitute the bound avatar. Avatar
// fallback is strictly an inactive-input behavior.
func TestActiveInputNeverFallsBackToAvatar(t *testing.T) {
	t.Parallel()

	c := newTestCompositor(t)
	if err := c.SetAvatar(2, "file:///tmp/unused.png"); err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}
	if err := c.ActivateInput(2); err != nil {
		t.Fatalf("ActivateInput: %v", err)
	}

	if f := c.InputFrame(2, -1); f != nil {
		t.Fatalf("InputFrame = %+v, want nil: an active input with an empty queue must not fall back to its avatar", f)
	}
}

func TestAddOutputPicksMatchingBand(t *testing.T) {
	t.Parallel()

	c := New(Config{
		MaxInput: 1, Width: 8, Height: 8,
		Bands: []Band{{MaxFps: 60, MinFps: 15}, {MaxFps: 48, MinFps: 6}},
	}, nil)
	defer c.Close()

	genIdx, _, err := c.AddOutput(6, nil)
	if err != nil {
		t.Fatalf("AddOutput(6): %v", err)
	}
	if genIdx != 1 {
		t.Fatalf("genIdx = %d, want 1 (the second band serves fps=6)", genIdx)
	}
}

func TestAddOutputUnsupportedAcrossAllBands(t *testing.T) {
	t.Parallel()

	c := newTestCompositor(t)
	if _, _, err := c.AddOutput(1, nil); err == nil {
		t.Fatal("expected an error: no configured band can serve fps=1")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxInput: 1, Width: 8, Height: 8, Bands: []Band{{MaxFps: 15, MinFps: 15}}}, nil)
	c.Close()
	c.Close() // must not panic or double-release
}

func TestUpdateRootSizeIsRejectedButDoesNotError(t *testing.T) {
	t.Parallel()

	c := newTestCompositor(t)
	if err := c.UpdateRootSize(1920, 1080); err != nil {
		t.Fatalf("UpdateRootSize: %v", err)
	}
}

// pushSyncFrames activates index and pushes one sync-enabled frame per
// timestamp given, in order.
func pushSyncFrames(t *testing.T, c *Compositor, index uint8, timestamps ...int64) {
	t.Helper()
	if err := c.ActivateInput(index); err != nil {
		t.Fatalf("ActivateInput(%d): %v", index, err)
	}
	for _, ts := range timestamps {
		if err := c.PushInput(index, testFrame(8, 8, ts, true, ts)); err != nil {
			t.Fatalf("PushInput(%d, %d): %v", index, ts, err)
		}
	}
}

// TestCrossInputSyncAdvancesToMinOfBacks is the full integration
// reproduction of spec.md §8 scenario S3, wiring two real SoftInputs
// through a Compositor/Generator pair instead of unit-testing SoftInput or
// syncTarget in isolation: input0's queue is [100,200,300], input1's is
// [250,350]. The correct common-window target is min(300,350)=300, not
// max(300,350)=350 — landing input0 on 300 and input1 on its own latest
// frame, 350.
func TestCrossInputSyncAdvancesToMinOfBacks(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxInput: 2, Width: 8, Height: 8, Bands: []Band{{MaxFps: 30, MinFps: 15}}}, nil)
	defer c.Close()

	pushSyncFrames(t, c, 0, 100, 200, 300)
	pushSyncFrames(t, c, 1, 250, 350)

	sol := twoRegionSolution()
	target := c.generators[0].syncTarget(sol)
	if target != 300 {
		t.Fatalf("syncTarget = %d, want 300 (min of backs 300 and 350, not their max)", target)
	}

	f0 := c.InputFrame(0, target)
	if f0 == nil || f0.SyncTimeStamp != 300 {
		t.Fatalf("input0 landed on %+v, want sync_timeStamp 300", f0)
	}
	f0.Buffer.Release()

	f1 := c.InputFrame(1, target)
	if f1 == nil || f1.SyncTimeStamp != 350 {
		t.Fatalf("input1 landed on %+v, want sync_timeStamp 350", f1)
	}
	f1.Buffer.Release()
}

// TestCrossInputSyncHoldsWhenWindowsDontOverlap covers the hold branch:
// input0's window is [100,150] and input1's is [200,250], so min_sync=200
// exceeds max_sync=150 and neither input has a common frame to advance to
// yet. Both must hold at their own front rather than drop anything.
func TestCrossInputSyncHoldsWhenWindowsDontOverlap(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxInput: 2, Width: 8, Height: 8, Bands: []Band{{MaxFps: 30, MinFps: 15}}}, nil)
	defer c.Close()

	pushSyncFrames(t, c, 0, 100, 150)
	pushSyncFrames(t, c, 1, 200, 250)

	sol := twoRegionSolution()
	target := c.generators[0].syncTarget(sol)
	if target != holdTarget {
		t.Fatalf("syncTarget = %d, want holdTarget (%d)", target, holdTarget)
	}

	f0 := c.InputFrame(0, target)
	if f0 == nil || f0.SyncTimeStamp != 100 {
		t.Fatalf("input0 = %+v, want its own front (100), held and not dropped", f0)
	}
	f0.Buffer.Release()
	if c.inputs[0].Len() != 2 {
		t.Fatalf("input0 queue Len = %d, want 2: holding must not drop anything", c.inputs[0].Len())
	}

	f1 := c.InputFrame(1, target)
	if f1 == nil || f1.SyncTimeStamp != 200 {
		t.Fatalf("input1 = %+v, want its own front (200), held and not dropped", f1)
	}
	f1.Buffer.Release()
	if c.inputs[1].Len() != 2 {
		t.Fatalf("input1 queue Len = %d, want 2: holding must not drop anything", c.inputs[1].Len())
	}
}

// TestCrossInputSyncUnsyncedFallsBackToPlainPop covers the case where no
// input in the solution is sync-enabled: the generator must not try to
// compute a common window at all, and each input just pops its queue
// normally. An unsynced push clears the queue before enqueuing, so the
// second push replaces the first and the pop returns that latest frame.
func TestCrossInputSyncUnsyncedFallsBackToPlainPop(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxInput: 2, Width: 8, Height: 8, Bands: []Band{{MaxFps: 30, MinFps: 15}}}, nil)
	defer c.Close()

	if err := c.ActivateInput(0); err != nil {
		t.Fatalf("ActivateInput(0): %v", err)
	}
	if err := c.PushInput(0, testFrame(8, 8, 1, false, 0)); err != nil {
		t.Fatalf("PushInput(0, 1): %v", err)
	}
	if err := c.PushInput(0, testFrame(8, 8, 2, false, 0)); err != nil {
		t.Fatalf("PushInput(0, 2): %v", err)
	}

	sol := layout.Solution{twoRegionSolution()[0]}
	target := c.generators[0].syncTarget(sol)
	if target != unsyncedTarget {
		t.Fatalf("syncTarget = %d, want unsyncedTarget (%d)", target, unsyncedTarget)
	}

	f := c.InputFrame(0, target)
	if f == nil || f.TimeStamp != 2 {
		t.Fatalf("InputFrame = %+v, want the latest frame (timestamp 2) popped normally", f)
	}
	f.Buffer.Release()
	if c.inputs[0].Len() != 1 {
		t.Fatalf("input0 queue Len = %d, want 1 after a normal pop", c.inputs[0].Len())
	}
}
