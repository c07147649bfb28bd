package lstack

import(
	"context"
	"log"
	"math"
	"sync"

	"luckystack/pkg/lframe"
	"luckystack/pkg/lmath"
)

// TrackPatches estimates, for every valid patch and every usable
// frame, the local sub-pixel displacement of the patch content,
// starting from the frame's global shift. Each worker owns whole
// patches, so Track records are never written concurrently.
//
// A pair ends up Rejected (and contributes nothing later) when the
// correlation peak is weak, the search hits its radius (likely
// decorrelation - clouds, frame edges), or the window leaves the
// frame. Rejection is bookkeeping, not an error.
func TrackPatches(ctx context.Context, fb *lframe.FrameBuffer, r *Ranking, g *PatchGrid, cfg Config) error {
	var wg sync.WaitGroup
	sem := make(chan bool, cfg.Workers)

	for _, p := range g.Patches {
		if !p.Valid { continue }
		if ctx.Err() != nil { break }
		sem <- true
		wg.Add(1)
		go func(p *AlignmentPatch) {
			defer func() { <-sem; wg.Done() }()
			for _, idx := range r.Usable {
				if ctx.Err() != nil { return }
				p.Tracks[idx] = trackPair(p, fb.Frames[idx], r.Reference, cfg)
			}
		}(p)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return ErrCancelled
	}

	if cfg.Verbosity > 0 {
		tracked, rejected := g.trackCounts()
		log.Printf("Patch tracking: %d pairs tracked, %d rejected\n", tracked, rejected)
	}
	return nil
}

func trackPair(p *AlignmentPatch, f *lframe.Frame, refIdx int, cfg Config) Track {
	if f.Index == refIdx {
		// The reference matches itself exactly, by construction.
		return Track{State: Tracked, Confidence: 1.0}
	}

	lum := f.BlurredLuminance()
	box := p.Core
	bw, bh := box.Dx(), box.Dy()

	// Whole-pixel starting estimate from the global alignment
	gx := int(math.Round(f.Shift.Dx))
	gy := int(math.Round(f.Shift.Dy))

	radius := cfg.SearchRadius
	bestOx, bestOy, best := 0, 0, -2.0

	// Center-out search: offsets in increasing ring distance, so the
	// saturation cut-off fires as early as possible for calm frames.
	for ring := 0; ring <= radius; ring++ {
		for _, off := range ringOffsets(ring) {
			ncc := lmath.WindowNCC(p.refBox, 0, 0, lum,
				box.Min.X+gx+off[0], box.Min.Y+gy+off[1], bw, bh)
			if ncc > best {
				best, bestOx, bestOy = ncc, off[0], off[1]
			}
		}
		if best >= cfg.SaturationConfidence { break }
	}

	if best < cfg.MinTrackConfidence {
		return Track{State: Rejected, Confidence: best}
	}
	// Hugging the search border means the real peak is probably
	// outside the sanity bound; don't trust it.
	if abs(bestOx) >= radius || abs(bestOy) >= radius {
		return Track{State: Rejected, Confidence: best}
	}

	// Sub-pixel refinement along each axis around the discrete peak
	nccAt := func(ox, oy int) float64 {
		return lmath.WindowNCC(p.refBox, 0, 0, lum,
			box.Min.X+gx+ox, box.Min.Y+gy+oy, bw, bh)
	}
	fx := lmath.RefinePeak(nccAt(bestOx-1, bestOy), best, nccAt(bestOx+1, bestOy))
	fy := lmath.RefinePeak(nccAt(bestOx, bestOy-1), best, nccAt(bestOx, bestOy+1))

	return Track{
		State:      Tracked,
		Dx:         float64(gx+bestOx) + fx,
		Dy:         float64(gy+bestOy) + fy,
		Confidence: best,
	}
}

// ringOffsets enumerates the offsets at Chebyshev distance `ring`
// from the origin, deterministically.
func ringOffsets(ring int) [][2]int {
	if ring == 0 {
		return [][2]int{{0, 0}}
	}
	offs := make([][2]int, 0, 8*ring)
	for x := -ring; x <= ring; x++ {
		offs = append(offs, [2]int{x, -ring}, [2]int{x, ring})
	}
	for y := -ring + 1; y <= ring-1; y++ {
		offs = append(offs, [2]int{-ring, y}, [2]int{ring, y})
	}
	return offs
}

func abs(v int) int {
	if v < 0 { return -v }
	return v
}

func (g *PatchGrid)trackCounts() (tracked, rejected int) {
	for _, p := range g.Patches {
		if !p.Valid { continue }
		for _, t := range p.Tracks {
			switch t.State {
			case Tracked:  tracked++
			case Rejected: rejected++
			}
		}
	}
	return
}
