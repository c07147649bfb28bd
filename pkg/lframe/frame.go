package lframe

import(
	"fmt"
	"image"
	"time"

	"luckystack/pkg/lmath"
)

// A Shift is the rigid transform aligning a frame to the reference:
// the frame content appears displaced by (Dx,Dy) and rotated by RotDeg
// relative to the reference. Confidence is the correlation peak
// quality the estimate was derived from.
type Shift struct {
	Dx, Dy     float64
	RotDeg     float64
	Confidence float64
}

func (s Shift)String() string {
	str := fmt.Sprintf("shift[(%6.2f,%6.2f)", s.Dx, s.Dy)
	if s.RotDeg != 0.0 {
		str += fmt.Sprintf(", %5.2fdeg", s.RotDeg)
	}
	return str + fmt.Sprintf(", conf %.2f]", s.Confidence)
}

// A Frame is one decoded image of the input sequence: channel planes
// plus the per-frame metadata the pipeline fills in as it goes. Pixel
// data is written once at construction and is read-only afterwards;
// the only exception is Derotate, which the global aligner calls
// before any patch-level work starts.
type Frame struct {
	Index     int       // capture order
	W, H      int
	Channels  int
	BitDepth  int       // 8 or 16; planes always hold values in [0,65535]
	Timestamp time.Time

	Pix [][]float32 // one plane per channel, row-major W*H

	Score  float64 // sharpness, filled in by scoring
	Usable bool
	Shift  Shift

	lum        *lmath.FloatGrid
	lumBlurred *lmath.FloatGrid
}

func NewFrame(index, w, h, channels, bitDepth int) (*Frame, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("frame %d: bad dimensions %dx%d", index, w, h)
	}
	if channels < 1 || channels > 4 {
		return nil, fmt.Errorf("frame %d: unsupported channel count %d", index, channels)
	}
	if bitDepth != 8 && bitDepth != 16 {
		return nil, fmt.Errorf("frame %d: unsupported bit depth %d", index, bitDepth)
	}
	f := &Frame{Index: index, W: w, H: h, Channels: channels, BitDepth: bitDepth}
	f.Pix = make([][]float32, channels)
	for c := range f.Pix {
		f.Pix[c] = make([]float32, w*h)
	}
	return f, nil
}

// FrameFromImage converts a decoded image.Image. Gray flavours become
// single-channel frames, everything else a 3-channel RGB frame.
func FrameFromImage(index int, img image.Image) (*Frame, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		f, err := NewFrame(index, w, h, 1, 8)
		if err != nil { return nil, err }
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				f.Pix[0][y*w+x] = float32(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y) * 257.0
			}
		}
		return f, nil
	case *image.Gray16:
		f, err := NewFrame(index, w, h, 1, 16)
		if err != nil { return nil, err }
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				f.Pix[0][y*w+x] = float32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return f, nil
	}

	f, err := NewFrame(index, w, h, 3, 16)
	if err != nil { return nil, err }
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			f.Pix[0][y*w+x] = float32(r)
			f.Pix[1][y*w+x] = float32(g)
			f.Pix[2][y*w+x] = float32(bl)
		}
	}
	return f, nil
}

// FrameFromPlanes wraps already-decoded planar channel data. The
// planes are copied into the frame's own storage, scaled to the
// 16-bit range.
func FrameFromPlanes8(index, w, h int, planes [][]uint8) (*Frame, error) {
	f, err := NewFrame(index, w, h, len(planes), 8)
	if err != nil { return nil, err }
	for c, p := range planes {
		if len(p) != w*h {
			return nil, fmt.Errorf("frame %d: plane %d has %d values, want %d", index, c, len(p), w*h)
		}
		for i, v := range p { f.Pix[c][i] = float32(v) * 257.0 }
	}
	return f, nil
}

func FrameFromPlanes16(index, w, h int, planes [][]uint16) (*Frame, error) {
	f, err := NewFrame(index, w, h, len(planes), 16)
	if err != nil { return nil, err }
	for c, p := range planes {
		if len(p) != w*h {
			return nil, fmt.Errorf("frame %d: plane %d has %d values, want %d", index, c, len(p), w*h)
		}
		for i, v := range p { f.Pix[c][i] = float32(v) }
	}
	return f, nil
}

// FrameFromInterleaved8 wraps interleaved channel data (e.g. RGBRGB...).
func FrameFromInterleaved8(index, w, h, channels int, pix []uint8) (*Frame, error) {
	f, err := NewFrame(index, w, h, channels, 8)
	if err != nil { return nil, err }
	if len(pix) != w*h*channels {
		return nil, fmt.Errorf("frame %d: %d interleaved values, want %d", index, len(pix), w*h*channels)
	}
	for i := 0; i < w*h; i++ {
		for c := 0; c < channels; c++ {
			f.Pix[c][i] = float32(pix[i*channels+c]) * 257.0
		}
	}
	return f, nil
}

func FrameFromInterleaved16(index, w, h, channels int, pix []uint16) (*Frame, error) {
	f, err := NewFrame(index, w, h, channels, 16)
	if err != nil { return nil, err }
	if len(pix) != w*h*channels {
		return nil, fmt.Errorf("frame %d: %d interleaved values, want %d", index, len(pix), w*h*channels)
	}
	for i := 0; i < w*h; i++ {
		for c := 0; c < channels; c++ {
			f.Pix[c][i] = float32(pix[i*channels+c])
		}
	}
	return f, nil
}

// Luminance projects the frame onto a single float grid: the mean of
// the channel planes (or a copy for mono frames). The result is cached;
// callers must warm the cache from a single goroutine per frame before
// sharing it (the scoring stage does this).
func (f *Frame)Luminance() *lmath.FloatGrid {
	if f.lum != nil { return f.lum }

	g := lmath.NewFloatGrid(f.W, f.H)
	vals := g.Values()
	if f.Channels == 1 {
		for i, v := range f.Pix[0] { vals[i] = float64(v) }
	} else {
		scale := 1.0 / float64(f.Channels)
		for i := range vals {
			sum := 0.0
			for c := 0; c < f.Channels; c++ { sum += float64(f.Pix[c][i]) }
			vals[i] = sum * scale
		}
	}
	f.lum = g
	return g
}

// BlurredLuminance is the slightly smoothed luminance used for frame
// scoring and correlation, where raw sensor noise would dominate.
func (f *Frame)BlurredLuminance() *lmath.FloatGrid {
	if f.lumBlurred != nil { return f.lumBlurred }
	f.lumBlurred = f.Luminance().GaussianBlur()
	return f.lumBlurred
}

// BilinearChannel samples one channel plane at a fractional position,
// clamping to the frame bounds.
func (f *Frame)BilinearChannel(c int, x, y float64) float64 {
	w, h := f.W, f.H
	if x < 0 { x = 0 }
	if y < 0 { y = 0 }
	if x > float64(w-1) { x = float64(w - 1) }
	if y > float64(h-1) { y = float64(h - 1) }

	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 > w-1 { x1 = w - 1 }
	if y1 > h-1 { y1 = h - 1 }
	fx, fy := x-float64(x0), y-float64(y0)

	p := f.Pix[c]
	top := float64(p[y0*w+x0])*(1-fx) + float64(p[y0*w+x1])*fx
	bot := float64(p[y1*w+x0])*(1-fx) + float64(p[y1*w+x1])*fx
	return top*(1-fy) + bot*fy
}

// Derotate resamples the frame content by -deg about the frame center,
// so that only a translation remains relative to the reference. Called
// once per frame by the global aligner, before patch tracking starts;
// the luminance caches are rebuilt from the rotated planes.
func (f *Frame)Derotate(deg float64) {
	if deg == 0 { return }

	cx, cy := float64(f.W)/2, float64(f.H)/2
	m := lmath.RotateAbout(deg, cx, cy) // maps output pixel -> source pixel

	for c := 0; c < f.Channels; c++ {
		src := f.Pix[c]
		dst := make([]float32, f.W*f.H)
		for y := 0; y < f.H; y++ {
			for x := 0; x < f.W; x++ {
				sx, sy := m.Apply(float64(x), float64(y))
				dst[y*f.W+x] = float32(bilinearPlane(src, f.W, f.H, sx, sy))
			}
		}
		f.Pix[c] = dst
	}

	// Rewarm the luminance caches here, while the caller still solely
	// owns the frame. The patch tracker shares frames across workers
	// and relies on these fields never being written after alignment.
	f.lum, f.lumBlurred = nil, nil
	f.BlurredLuminance()
}

func bilinearPlane(p []float32, w, h int, x, y float64) float64 {
	if x < 0 { x = 0 }
	if y < 0 { y = 0 }
	if x > float64(w-1) { x = float64(w - 1) }
	if y > float64(h-1) { y = float64(h - 1) }
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 > w-1 { x1 = w - 1 }
	if y1 > h-1 { y1 = h - 1 }
	fx, fy := x-float64(x0), y-float64(y0)
	top := float64(p[y0*w+x0])*(1-fx) + float64(p[y0*w+x1])*fx
	bot := float64(p[y1*w+x0])*(1-fx) + float64(p[y1*w+x1])*fx
	return top*(1-fy) + bot*fy
}
