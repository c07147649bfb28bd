package lmath

import(
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// A FloatGrid is a 2D grid of float64 values, used for luminance
// planes, correlation surfaces and blend windows.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) *FloatGrid {
	return &FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Dy() int                 { return len(fg.values) / fg.stride }
func (fg *FloatGrid)Values() []float64       { return fg.values }

func (g1 *FloatGrid)Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

func (fg *FloatGrid)Fill(v float64) {
	for i := range fg.values { fg.values[i] = v }
}

// SubGrid copies the w x h region with top-left corner (x0,y0) into a
// new grid. The region must lie within the grid bounds.
func (g1 *FloatGrid)SubGrid(x0, y0, w, h int) *FloatGrid {
	g2 := NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		copy(g2.values[y*w:(y+1)*w], g1.values[(y0+y)*g1.stride+x0:(y0+y)*g1.stride+x0+w])
	}
	return g2
}

func (fg *FloatGrid)Mean() float64 {
	sum := 0.0
	for _, v := range fg.values { sum += v }
	return sum / float64(len(fg.values))
}

func (fg *FloatGrid)MeanStdDev() (float64, float64) {
	mean := fg.Mean()
	sum := 0.0
	for _, v := range fg.values {
		d := v - mean
		sum += d * d
	}
	return mean, math.Sqrt(sum / float64(len(fg.values)))
}

func (fg *FloatGrid)MinMax() (float64, float64) {
	min, max := math.MaxFloat64, -math.MaxFloat64
	for _, v := range fg.values {
		if v < min { min = v }
		if v > max { max = v }
	}
	return min, max
}

// GaussianBlur applies a cheap 3-tap separable blur, weights (1,2,1)/4,
// with reflective handling at the borders.
func (g1 *FloatGrid)GaussianBlur() *FloatGrid {
	width := g1.Dx()
	height := g1.Dy()
	g2 := NewFloatGrid(width, height)
	T := NewFloatGrid(width, height)

	//--- X blur, build up in T
	for y := 0; y < height; y++ {
		for x := 1; x < width-1; x++ {
			t := 2.0*g1.Get(x, y)
			t += g1.Get(x-1, y)
			t += g1.Get(x+1, y)
			T.Set(x, y, t/4.0)
		}
		T.Set(0, y,       (3.0*g1.Get(0,       y) + g1.Get(1,       y)) / 4.0)
		T.Set(width-1, y, (3.0*g1.Get(width-1, y) + g1.Get(width-2, y)) / 4.0)
	}

	//--- Y blur, read from T and generate output
	for x := 0; x < width; x++ {
		for y := 1; y < height-1; y++ {
			t := 2.0*T.Get(x, y)
			t += T.Get(x, y-1)
			t += T.Get(x, y+1)
			g2.Set(x, y, t/4.0)
		}
		g2.Set(x, 0,        (3.0*T.Get(x,        0) + T.Get(x,        1)) / 4.0)
		g2.Set(x, height-1, (3.0*T.Get(x, height-1) + T.Get(x, height-2)) / 4.0)
	}

	return g2
}

// BilinearSample interpolates the grid at a fractional position,
// clamping coordinates to the grid bounds.
func (fg *FloatGrid)BilinearSample(x, y float64) float64 {
	w, h := fg.Dx(), fg.Dy()
	if x < 0 { x = 0 }
	if y < 0 { y = 0 }
	if x > float64(w-1) { x = float64(w - 1) }
	if y > float64(h-1) { y = float64(h - 1) }

	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 > w-1 { x1 = w - 1 }
	if y1 > h-1 { y1 = h - 1 }
	fx, fy := x-float64(x0), y-float64(y0)

	top := fg.Get(x0, y0)*(1-fx) + fg.Get(x1, y0)*fx
	bot := fg.Get(x0, y1)*(1-fx) + fg.Get(x1, y1)*fx
	return top*(1-fy) + bot*fy
}

func (fg *FloatGrid)Stats() string {
	min, max := fg.MinMax()
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}]", fg.Dx(), fg.Dy(), min, max)
}

// ToImg saves a simple grayscale, based on the range of values in the
// grid, gamma scaled to look normal for human vision.
func (fg *FloatGrid)ToImg(title, filename string) error {
	min, max := fg.MinMax()
	if max <= min { max = min + 1 }

	img := image.NewRGBA64(image.Rectangle{Max: image.Point{fg.Dx(), fg.Dy()}})
	for x := 0; x < fg.Dx(); x++ {
		for y := 0; y < fg.Dy(); y++ {
			gray := GammaExpand_F64((fg.Get(x, y) - min) / (max - min))
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 20, 20)
	return dc.SavePNG(filename)
}

// GammaExpand_F64 maps a linear value in [0,1] to sRGB-ish gamma space.
func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055*math.Pow(f, 1.0/2.4) - 0.055
}
