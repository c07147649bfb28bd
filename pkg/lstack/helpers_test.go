package lstack

import(
	"math"

	"luckystack/pkg/lframe"
)

// scene is a smooth analytic test pattern: textured enough for the
// correlators to lock onto, band-limited enough that bilinear
// resampling is nearly exact.
func scene(x, y float64) float64 {
	return 20000 +
		8000*math.Sin(x*0.35) +
		6000*math.Cos(y*0.28) +
		5000*math.Sin((x+y)*0.17)
}

// softScene is the same pattern at half the spatial frequency, i.e. a
// "bad seeing" frame: same brightness, weaker gradients.
func softScene(x, y float64) float64 {
	return 20000 +
		8000*math.Sin(x*0.175) +
		6000*math.Cos(y*0.14) +
		5000*math.Sin((x+y)*0.085)
}

// sceneFrame renders the pattern displaced by (dx,dy): content moves
// right/down for positive shifts, so pattern pixel (x,y) lands at
// (x+dx, y+dy).
func sceneFrame(idx, w, h int, dx, dy float64, fn func(x, y float64) float64) *lframe.Frame {
	plane := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			plane[y*w+x] = uint16(fn(float64(x)-dx, float64(y)-dy))
		}
	}
	f, err := lframe.FrameFromPlanes16(idx, w, h, [][]uint16{plane})
	if err != nil {
		panic(err)
	}
	return f
}

func sceneBuffer(w, h int, shifts [][2]float64) *lframe.FrameBuffer {
	fb := lframe.NewFrameBuffer()
	for i, s := range shifts {
		if err := fb.Add(sceneFrame(i, w, h, s[0], s[1], scene)); err != nil {
			panic(err)
		}
	}
	return fb
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.PatchSize = 32
	cfg.PatchOverlap = 8
	cfg.SearchRadius = 5
	cfg.MaxGlobalShift = 16
	cfg.RetainFraction = 1.0
	cfg.Workers = 3
	if err := cfg.FinalizeConfig(); err != nil {
		panic(err)
	}
	return cfg
}
