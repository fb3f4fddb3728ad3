package compositor

import "testing"

// TestQueueNeverExceedsMaxQueueSize is a property-style test for spec
// invariant 1: no matter how many frames are pushed, a SoftInput's queue
// depth never exceeds MaxQueueSize.
func TestQueueNeverExceedsMaxQueueSize(t *testing.T) {
	t.Parallel()

	in := NewSoftInput(nil)
	in.SetActive(true)

	for i := 0; i < 500; i++ {
		in.PushInput(testFrame(8, 8, int64(i), false, 0))
		if n := in.Len(); n > MaxQueueSize {
			t.Fatalf("after push %d: Len = %d, exceeds MaxQueueSize %d", i, n, MaxQueueSize)
		}
	}
}

// TestBufferConservationAcrossPushPop is a property-style test for spec
// invariant 5: every buffer the pool hands out during a long push/pop
// cycle is eventually released back to it, so the pool never grows past
// its configured capacity regardless of how long the input runs.
func TestBufferConservationAcrossPushPop(t *testing.T) {
	t.Parallel()

	in := NewSoftInput(nil)
	in.SetActive(true)

	for i := 0; i < 1000; i++ {
		in.PushInput(testFrame(8, 8, int64(i), false, 0))
		f := in.PopInput()
		// A leaked buffer would exhaust the MaxQueueSize-capped pool, the
		// push would be dropped, and the pop would return a stale frame.
		if f == nil || f.TimeStamp != int64(i) {
			t.Fatalf("iteration %d: PopInput = %+v, want the frame just pushed", i, f)
		}
		f.Buffer.Release()
	}

	// Draining whatever remains must not panic or double-release.
	in.Close()
}

// TestPopInputFloorHoldsUnderRepeatedPops is a property-style test for
// spec invariant 6: repeatedly popping a queue that never receives a new
// frame always returns the same sole frame rather than emptying the
// queue.
func TestPopInputFloorHoldsUnderRepeatedPops(t *testing.T) {
	t.Parallel()

	in := NewSoftInput(nil)
	in.SetActive(true)
	in.PushInput(testFrame(8, 8, 0, false, 0))

	for i := 0; i < 200; i++ {
		f := in.PopInput()
		if f == nil {
			t.Fatalf("iteration %d: PopInput returned nil, expected the floor frame to persist", i)
		}
		f.Buffer.Release()
		if in.Len() != 1 {
			t.Fatalf("iteration %d: Len = %d, want 1 (floor must hold)", i, in.Len())
		}
	}
}
