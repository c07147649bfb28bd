package lstack

import(
	"luckystack/pkg/lframe"
	"luckystack/pkg/lmath"
)

// A Metric turns a luminance grid into a scalar sharpness proxy:
// higher is sharper. Implementations must be pure and deterministic.
// The right metric is target-dependent (planetary disc vs lunar
// surface), hence the strategy interface.
type Metric interface {
	Name() string
	Score(g *lmath.FloatGrid, stride int) float64
}

// XYGradientMetric sums |dx|+|dy| of neighbouring pixels, sampled on a
// stride to keep the cost down on large frames. Fast, and good enough
// for typical seeing-limited blur.
type XYGradientMetric struct{}

func (XYGradientMetric)Name() string { return "xygradient" }

func (XYGradientMetric)Score(g *lmath.FloatGrid, stride int) float64 {
	w, h := g.Dx(), g.Dy()
	if w < 2 || h < 2 { return 0 }
	sum, n := 0.0, 0
	for y := 0; y < h-1; y += stride {
		for x := 0; x < w-1; x += stride {
			v := g.Get(x, y)
			dx := g.Get(x+1, y) - v
			dy := g.Get(x, y+1) - v
			if dx < 0 { dx = -dx }
			if dy < 0 { dy = -dy }
			sum += dx + dy
			n++
		}
	}
	if n == 0 { return 0 }
	return sum / float64(n)
}

// LaplaceMetric is the variance of the 4-neighbour laplacian. Slower
// but more selective on fine detail.
type LaplaceMetric struct{}

func (LaplaceMetric)Name() string { return "laplace" }

func (LaplaceMetric)Score(g *lmath.FloatGrid, stride int) float64 {
	w, h := g.Dx(), g.Dy()
	if w < 3 || h < 3 { return 0 }

	sum, sumSq, n := 0.0, 0.0, 0
	for y := 1; y < h-1; y += stride {
		for x := 1; x < w-1; x += stride {
			l := g.Get(x-1, y) + g.Get(x+1, y) + g.Get(x, y-1) + g.Get(x, y+1) - 4*g.Get(x, y)
			sum += l
			sumSq += l * l
			n++
		}
	}
	if n == 0 { return 0 }
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// SobelMetric is the mean squared sobel gradient magnitude. The
// classic choice; heavier than the xy gradient.
type SobelMetric struct{}

func (SobelMetric)Name() string { return "sobel" }

func (SobelMetric)Score(g *lmath.FloatGrid, stride int) float64 {
	w, h := g.Dx(), g.Dy()
	if w < 3 || h < 3 { return 0 }

	sum, n := 0.0, 0
	for y := 1; y < h-1; y += stride {
		for x := 1; x < w-1; x += stride {
			gx := g.Get(x+1, y-1) + 2*g.Get(x+1, y) + g.Get(x+1, y+1) -
				g.Get(x-1, y-1) - 2*g.Get(x-1, y) - g.Get(x-1, y+1)
			gy := g.Get(x-1, y+1) + 2*g.Get(x, y+1) + g.Get(x+1, y+1) -
				g.Get(x-1, y-1) - 2*g.Get(x, y-1) - g.Get(x+1, y-1)
			sum += gx*gx + gy*gy
			n++
		}
	}
	if n == 0 { return 0 }
	return sum / float64(n)
}

// ScoreFrame computes the frame's sharpness score on its blurred
// luminance. Degenerate frames (no variance at all) get the sentinel
// score 0 rather than an error, so ranking stays total.
func ScoreFrame(f *lframe.Frame, cfg Config) float64 {
	g := f.BlurredLuminance()
	mean, sd := g.MeanStdDev()
	if sd < 1e-9 { return 0 }

	score := cfg.GetMetric().Score(g, cfg.QualityStride)
	if cfg.NormalizeBrightness && mean > 1e-9 {
		score /= mean
	}
	return score
}
