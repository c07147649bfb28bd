package lmath

import(
	"math"
	"testing"
)

// A smooth pattern that is periodic over the grid, so circular shifts
// are exact and phase correlation should recover them perfectly.
func periodicPattern(w, h int) *FloatGrid {
	g := NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := math.Sin(2*math.Pi*3*float64(x)/float64(w)) +
				math.Cos(2*math.Pi*5*float64(y)/float64(h)) +
				0.5*math.Sin(2*math.Pi*2*float64(x+y)/float64(w))
			g.Set(x, y, v)
		}
	}
	return g
}

func circularShift(g *FloatGrid, dx, dy int) *FloatGrid {
	w, h := g.Dx(), g.Dy()
	out := NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set((x+dx+w)%w, (y+dy+h)%h, g.Get(x, y))
		}
	}
	return out
}

func TestPhaseCorrelateRecoversShift(t *testing.T) {
	ref := periodicPattern(64, 48)
	cases := []struct{ dx, dy int }{
		{0, 0}, {3, 0}, {0, -4}, {7, 5}, {-6, 2},
	}
	for _, c := range cases {
		img := circularShift(ref, c.dx, c.dy)
		dx, dy, conf := PhaseCorrelate(ref, img)
		if dx != c.dx || dy != c.dy {
			t.Fatalf("shift (%d,%d): got (%d,%d)", c.dx, c.dy, dx, dy)
		}
		if conf < 0.9 {
			t.Fatalf("shift (%d,%d): confidence %f too low for a clean signal", c.dx, c.dy, conf)
		}
	}
}

func TestPhaseCorrelateFlatInput(t *testing.T) {
	a := NewFloatGrid(32, 32)
	b := NewFloatGrid(32, 32)
	_, _, conf := PhaseCorrelate(a, b)
	if conf > 0.5 {
		t.Fatalf("flat inputs should not report a confident peak, got %f", conf)
	}
}

func TestPhaseCorrelateSubPixel(t *testing.T) {
	ref := periodicPattern(64, 64)
	img := circularShift(ref, 4, -3)
	dx, dy, conf := PhaseCorrelateSubPixel(ref, img)
	if math.Abs(dx-4) > 0.25 || math.Abs(dy+3) > 0.25 {
		t.Fatalf("sub-pixel estimate (%f,%f) too far from (4,-3)", dx, dy)
	}
	if conf < 0.9 {
		t.Fatalf("confidence %f too low", conf)
	}
}

// Both correlators decode the same peak: the whole-pixel estimate is
// the rounded sub-pixel one.
func TestPhaseCorrelateVariantsAgree(t *testing.T) {
	ref := periodicPattern(64, 48)
	for _, c := range []struct{ dx, dy int }{{0, 0}, {5, -3}, {-7, 6}} {
		img := circularShift(ref, c.dx, c.dy)
		idx, idy, iconf := PhaseCorrelate(ref, img)
		fdx, fdy, fconf := PhaseCorrelateSubPixel(ref, img)
		if idx != int(math.Round(fdx)) || idy != int(math.Round(fdy)) {
			t.Fatalf("shift (%d,%d): integer (%d,%d) vs sub-pixel (%f,%f)",
				c.dx, c.dy, idx, idy, fdx, fdy)
		}
		if iconf != fconf {
			t.Fatalf("shift (%d,%d): confidences diverge: %f vs %f", c.dx, c.dy, iconf, fconf)
		}
	}
}

func TestRefinePeak(t *testing.T) {
	if off := RefinePeak(0.5, 1.0, 0.5); off != 0 {
		t.Fatalf("symmetric peak should refine to 0, got %f", off)
	}
	// Parabola y = 1 - (x-0.25)^2 sampled at -1,0,1
	f := func(x float64) float64 { return 1 - (x-0.25)*(x-0.25) }
	off := RefinePeak(f(-1), f(0), f(1))
	if math.Abs(off-0.25) > 1e-9 {
		t.Fatalf("expected offset 0.25, got %f", off)
	}
	// Degenerate: all equal
	if off := RefinePeak(1, 1, 1); off != 0 {
		t.Fatalf("degenerate fit should return 0, got %f", off)
	}
}

func TestWindowNCC(t *testing.T) {
	g := periodicPattern(40, 40)
	// Identical windows correlate perfectly
	if c := WindowNCC(g, 5, 5, g, 5, 5, 16, 16); math.Abs(c-1) > 1e-9 {
		t.Fatalf("self correlation = %f, want 1", c)
	}
	// A shifted window correlates less
	if c := WindowNCC(g, 5, 5, g, 9, 11, 16, 16); c >= 0.99 {
		t.Fatalf("offset correlation suspiciously high: %f", c)
	}
	// Zero-variance window is guarded
	flat := NewFloatGrid(40, 40)
	if c := WindowNCC(g, 5, 5, flat, 5, 5, 16, 16); c != 0 {
		t.Fatalf("flat window should give 0, got %f", c)
	}
	// Out-of-bounds window is guarded
	if c := WindowNCC(g, 30, 30, g, 5, 5, 16, 16); c != 0 {
		t.Fatalf("out-of-bounds window should give 0, got %f", c)
	}
}
