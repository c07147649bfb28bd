package lstack

import(
	"errors"
)

// Fatal errors abort a run. Everything else that can go wrong
// (one frame failing alignment, one patch rejected for one frame) is
// absorbed locally and only shows up as counts in the RunSummary.
var(
	// ErrInsufficientFrames: fewer usable frames than the configured
	// minimum survived scoring.
	ErrInsufficientFrames = errors.New("insufficient usable frames")

	// ErrCancelled: the run was cancelled; no output image is produced,
	// but the partial summary is returned alongside.
	ErrCancelled = errors.New("run cancelled")

	// ErrNotFinalized: output pixels were read before Finalize.
	ErrNotFinalized = errors.New("output image not finalized")
)
