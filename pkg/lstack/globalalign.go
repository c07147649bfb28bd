package lstack

import(
	"context"
	"log"
	"math"
	"sync"

	"luckystack/pkg/lframe"
	"luckystack/pkg/lmath"
)

// AlignFrames estimates one rigid transform per usable frame against
// the reference, via phase correlation on the blurred luminance.
// Frames whose shift exceeds MaxGlobalShift or whose correlation peak
// is too weak are marked unusable and pruned from the ranking - never
// an error; a cloud crossing one frame must not abort the run.
// Returns the number of frames rejected here.
func AlignFrames(ctx context.Context, fb *lframe.FrameBuffer, r *Ranking, cfg Config) (int, error) {
	ref := fb.Frames[r.Reference]
	refLum := ref.BlurredLuminance()
	ref.Shift = lframe.Shift{Confidence: 1.0}

	var wg sync.WaitGroup
	sem := make(chan bool, cfg.Workers)
	for _, idx := range r.Usable {
		if idx == r.Reference { continue }
		if ctx.Err() != nil { break }
		sem <- true
		wg.Add(1)
		go func(f *lframe.Frame) {
			defer func() { <-sem; wg.Done() }()
			alignFrame(ref, refLum, f, cfg)
		}(fb.Frames[idx])
	}
	wg.Wait()
	if ctx.Err() != nil {
		return 0, ErrCancelled
	}

	// Prune rejects from the usable set, keeping ranking order
	rejected := 0
	kept := r.Usable[:0]
	for _, idx := range r.Usable {
		if fb.Frames[idx].Usable {
			kept = append(kept, idx)
		} else {
			rejected++
		}
	}
	r.Usable = kept

	if cfg.Verbosity > 0 {
		log.Printf("Global alignment: %d frames aligned, %d rejected\n", len(r.Usable), rejected)
	}
	return rejected, nil
}

func alignFrame(ref *lframe.Frame, refLum *lmath.FloatGrid, f *lframe.Frame, cfg Config) {
	lum := f.BlurredLuminance()
	dx, dy, conf := lmath.PhaseCorrelateSubPixel(refLum, lum)
	rot := 0.0

	if cfg.EstimateRotation {
		// Try a bounded set of candidate angles; each candidate is
		// scored by re-running the correlation on the derotated
		// luminance. The zero-rotation result stands unless a rotated
		// candidate beats its confidence.
		for theta := -cfg.MaxRotationDeg; theta <= cfg.MaxRotationDeg+1e-9; theta += cfg.RotationStepDeg {
			if theta == 0 { continue }
			rotated := rotateGrid(lum, theta)
			cdx, cdy, cconf := lmath.PhaseCorrelateSubPixel(refLum, rotated)
			if cconf > conf {
				dx, dy, conf, rot = cdx, cdy, cconf, theta
			}
		}
	}

	mag := math.Sqrt(dx*dx + dy*dy)
	if conf < cfg.GlobalMinConfidence || mag > float64(cfg.MaxGlobalShift) {
		f.Usable = false
		if cfg.Verbosity > 1 {
			log.Printf("Frame %d rejected by global alignment: shift %.1fpx conf %.2f\n", f.Index, mag, conf)
		}
		return
	}

	// (dx,dy) is the frame content's displacement relative to the
	// reference: ref pixel (x,y) appears at (x+dx, y+dy) in this frame.
	f.Shift = lframe.Shift{Dx: dx, Dy: dy, RotDeg: rot, Confidence: conf}
	if rot != 0 {
		f.Derotate(rot)
	}
	if cfg.Verbosity > 1 {
		log.Printf("Frame %d global %s\n", f.Index, f.Shift)
	}
}

// rotateGrid resamples a grid rotated by -deg about its center.
func rotateGrid(g *lmath.FloatGrid, deg float64) *lmath.FloatGrid {
	w, h := g.Dx(), g.Dy()
	m := lmath.RotateAbout(deg, float64(w)/2, float64(h)/2)
	out := lmath.NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := m.Apply(float64(x), float64(y))
			out.Set(x, y, g.BilinearSample(sx, sy))
		}
	}
	return out
}
