package lstack

import(
	"context"
	"math"
	"sync"

	"luckystack/pkg/lframe"
)

// Accumulate resamples every tracked (patch, frame) pair into
// per-patch buffers, then folds the buffers into the output image.
// The parallel phase gives each worker whole patches so no buffer is
// shared; the fold runs serially in patch-ID order, which makes the
// output bit-identical from run to run regardless of worker count.
func Accumulate(ctx context.Context, fb *lframe.FrameBuffer, r *Ranking, g *PatchGrid, cfg Config) (*OutputImage, error) {
	out := NewOutputImage(fb.W, fb.H, fb.Channels)

	var wg sync.WaitGroup
	sem := make(chan bool, cfg.Workers)

	for _, p := range g.Patches {
		if !p.Valid { continue }
		if ctx.Err() != nil { break }
		sem <- true
		wg.Add(1)
		go func(p *AlignmentPatch) {
			defer func() { <-sem; wg.Done() }()
			accumulatePatch(ctx, p, fb, r, cfg)
		}(p)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	for _, p := range g.Patches {
		if p.Valid { p.fold(out) }
	}
	return out, nil
}

func accumulatePatch(ctx context.Context, p *AlignmentPatch, fb *lframe.FrameBuffer, r *Ranking, cfg Config) {
	pw, ph := p.Region.Dx(), p.Region.Dy()
	p.acc = make([]float64, pw*ph*fb.Channels)
	p.wsum = make([]float64, pw*ph)

	for _, idx := range r.Usable {
		if ctx.Err() != nil { return }
		t := p.Tracks[idx]
		if t.State != Tracked { continue }
		f := fb.Frames[idx]

		w := pairWeight(r.Normalized[idx], t.Confidence, cfg)
		if w <= 0 { continue }

		for y := 0; y < ph; y++ {
			srcY := float64(p.Region.Min.Y+y) + t.Dy
			for x := 0; x < pw; x++ {
				srcX := float64(p.Region.Min.X+x) + t.Dx
				ww := w * p.Window.Get(x, y)
				if ww <= 0 { continue }
				p.wsum[y*pw+x] += ww
				base := (y*pw + x) * fb.Channels
				for c := 0; c < fb.Channels; c++ {
					p.acc[base+c] += ww * f.BilinearChannel(c, srcX, srcY)
				}
			}
		}
	}
}

// pairWeight blends frame quality and tracking confidence. The
// exponents let either term dominate; both default to 1.
func pairWeight(quality, confidence float64, cfg Config) float64 {
	if quality < 0 { quality = 0 }
	if confidence < 0 { confidence = 0 }
	return math.Pow(quality, cfg.QualityExponent) * math.Pow(confidence, cfg.ConfidenceExponent)
}

// fold deposits a patch's buffers into the output. Overlapping
// patches simply add; the blend windows make the seams smooth.
func (p *AlignmentPatch)fold(out *OutputImage) {
	if p.acc == nil { return }
	pw, ph := p.Region.Dx(), p.Region.Dy()
	for y := 0; y < ph; y++ {
		oy := p.Region.Min.Y + y
		for x := 0; x < pw; x++ {
			ox := p.Region.Min.X + x
			out.Weight[oy*out.W+ox] += p.wsum[y*pw+x]
			srcBase := (y*pw + x) * out.Channels
			dstBase := (oy*out.W + ox) * out.Channels
			for c := 0; c < out.Channels; c++ {
				out.Acc[dstBase+c] += p.acc[srcBase+c]
			}
		}
	}
}
