package lstack

import(
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"time"

	"luckystack/pkg/lframe"
)

// A Result bundles the stacked image with the run's bookkeeping. The
// patch grid is exposed for diagnostic rendering.
type Result struct {
	Output  *OutputImage
	Summary *RunSummary
	Grid    *PatchGrid
}

// Run executes the whole pipeline: rank, align, tessellate, track,
// accumulate. Per-frame and per-patch failures are absorbed into the
// summary counts; only structural problems (too few frames, mismatched
// geometry, cancellation) abort the run.
func Run(ctx context.Context, fb *lframe.FrameBuffer, cfg Config) (*Result, error) {
	started := time.Now()
	s := newRunSummary()
	s.FramesLoaded = fb.Len()

	// Callers who build a Config by hand and skip FinalizeConfig must
	// not end up with zero-capacity worker semaphores.
	if cfg.Workers <= 0 { cfg.Workers = runtime.NumCPU() }

	if fb.Len() < cfg.MinUsableFrames {
		return nil, fmt.Errorf("%w: %d loaded (minimum %d)",
			ErrInsufficientFrames, fb.Len(), cfg.MinUsableFrames)
	}

	if cfg.Verbosity > 0 {
		log.Printf("Stacking %d frames of %dx%dx%d\n", fb.Len(), fb.W, fb.H, fb.Channels)
	}

	// Cancellation still hands back the partial summary, so callers
	// can report how far the run got.
	fail := func(err error) (*Result, error) {
		if errors.Is(err, ErrCancelled) {
			s.Elapsed = time.Since(started)
			return &Result{Summary: s}, err
		}
		return nil, err
	}

	r, err := RankFrames(ctx, fb, cfg)
	if err != nil {
		return fail(err)
	}
	s.ReferenceIndex = fb.Frames[r.Reference].Index
	s.recordScores(fb, r)

	if _, err := AlignFrames(ctx, fb, r, cfg); err != nil {
		return fail(err)
	}
	if len(r.Usable) < cfg.MinUsableFrames {
		return nil, fmt.Errorf("%w: %d survived global alignment (minimum %d)",
			ErrInsufficientFrames, len(r.Usable), cfg.MinUsableFrames)
	}
	s.FramesUsable = len(r.Usable)
	s.FramesRejected = fb.Len() - len(r.Usable)

	g, err := BuildPatchGrid(fb, r, cfg)
	if err != nil {
		return nil, err
	}
	s.PatchTotal = len(g.Patches)
	s.PatchValid = g.ValidCount()

	if err := TrackPatches(ctx, fb, r, g, cfg); err != nil {
		return fail(err)
	}
	s.PairsTracked, s.PairsRejected = g.trackCounts()
	s.recordShifts(g)

	out, err := Accumulate(ctx, fb, r, g, cfg)
	if err != nil {
		return fail(err)
	}
	out.Finalize()
	s.UndefinedPixels = out.Undefined
	s.Elapsed = time.Since(started)

	if cfg.Verbosity > 0 {
		log.Printf("%s", s)
	}

	return &Result{Output: out, Summary: s, Grid: g}, nil
}
