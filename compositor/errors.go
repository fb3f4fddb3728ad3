package compositor

import "errors"

// Sentinel errors returned by the compositor façade (spec.md §7). Internal
// per-tick failures (pool exhaustion, avatar load failure) are logged and
// skipped rather than surfaced as errors: a single bad tick must never
// stall the generator's timer goroutine.
var (
	// ErrInputOutOfRange is returned when an input index is >= maxInput.
	ErrInputOutOfRange = errors.New("compositor: input index out of range")

	// ErrUnsupportedFPS is returned by AddOutput when requestedFps cannot
	// be served by any configured generator band (spec.md §4.3: fps must be
	// one of the power-of-two halvings of a band's max fps, down to its min
	// fps).
	ErrUnsupportedFPS = errors.New("compositor: unsupported output fps")

	// ErrOutputNotFound is returned by RemoveOutput for an output id that
	// is not currently registered on any generator.
	ErrOutputNotFound = errors.New("compositor: output not found")

	// ErrClosed is returned by AddOutput and RemoveOutput on a compositor
	// that has already been shut down.
	ErrClosed = errors.New("compositor: closed")
)
