package lmath

import(
	"math"
	"testing"
)

func TestGaussianBlurPreservesConstant(t *testing.T) {
	g := NewFloatGrid(16, 12)
	g.Fill(7.5)
	b := g.GaussianBlur()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if math.Abs(b.Get(x, y)-7.5) > 1e-12 {
				t.Fatalf("blur of constant grid changed value at (%d,%d): %f", x, y, b.Get(x, y))
			}
		}
	}
}

func TestGaussianBlurSmooths(t *testing.T) {
	g := NewFloatGrid(9, 9)
	g.Set(4, 4, 100)
	b := g.GaussianBlur()
	if b.Get(4, 4) >= 100 {
		t.Fatalf("blur did not reduce the spike: %f", b.Get(4, 4))
	}
	if b.Get(3, 4) <= 0 || b.Get(4, 3) <= 0 {
		t.Fatalf("blur did not spread the spike to neighbours")
	}
}

func TestBilinearSample(t *testing.T) {
	g := NewFloatGrid(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			g.Set(x, y, float64(x)+10*float64(y))
		}
	}

	if v := g.BilinearSample(2, 3); v != 32 {
		t.Fatalf("integer sample: got %f want 32", v)
	}
	if v := g.BilinearSample(1.5, 2); math.Abs(v-21.5) > 1e-12 {
		t.Fatalf("half-pixel x sample: got %f want 21.5", v)
	}
	if v := g.BilinearSample(1, 1.5); math.Abs(v-16) > 1e-12 {
		t.Fatalf("half-pixel y sample: got %f want 16", v)
	}
	// Out-of-bounds coordinates clamp to the border
	if v := g.BilinearSample(-5, -5); v != 0 {
		t.Fatalf("clamped sample: got %f want 0", v)
	}
	if v := g.BilinearSample(100, 100); v != 33 {
		t.Fatalf("clamped sample: got %f want 33", v)
	}
}

func TestSubGrid(t *testing.T) {
	g := NewFloatGrid(6, 6)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ { g.Set(x, y, float64(y*6+x)) }
	}
	s := g.SubGrid(2, 3, 3, 2)
	if s.Dx() != 3 || s.Dy() != 2 {
		t.Fatalf("subgrid dims %dx%d", s.Dx(), s.Dy())
	}
	if s.Get(0, 0) != g.Get(2, 3) || s.Get(2, 1) != g.Get(4, 4) {
		t.Fatalf("subgrid values wrong: %f %f", s.Get(0, 0), s.Get(2, 1))
	}
}

func TestMeanStdDev(t *testing.T) {
	g := NewFloatGrid(2, 2)
	g.Set(0, 0, 1)
	g.Set(1, 0, 3)
	g.Set(0, 1, 1)
	g.Set(1, 1, 3)
	mean, sd := g.MeanStdDev()
	if mean != 2 || math.Abs(sd-1) > 1e-12 {
		t.Fatalf("mean=%f sd=%f, want 2 and 1", mean, sd)
	}
}
