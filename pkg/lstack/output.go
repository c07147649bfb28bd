package lstack

import(
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mdouchement/hdr/codec/rgbe"
)

// OutputImage is the weighted accumulation target. Patches deposit
// weighted samples into Acc and their weights into Weight; Finalize
// divides them out. Pixels that no tracked patch ever covered stay
// at zero weight and are reported as undefined.
type OutputImage struct {
	W, H, Channels int
	Acc            []float64 // len W*H*Channels
	Weight         []float64 // len W*H, shared across channels
	Undefined      int
	finalized      bool
}

func NewOutputImage(w, h, channels int) *OutputImage {
	return &OutputImage{
		W: w, H: h, Channels: channels,
		Acc:    make([]float64, w*h*channels),
		Weight: make([]float64, w*h),
	}
}

// Finalize converts accumulated sums into mean sample values. Safe to
// call exactly once; the undefined-pixel count is computed here.
func (o *OutputImage)Finalize() {
	if o.finalized { return }
	for y := 0; y < o.H; y++ {
		for x := 0; x < o.W; x++ {
			w := o.Weight[y*o.W+x]
			if w <= 0 {
				o.Undefined++
				continue
			}
			base := (y*o.W + x) * o.Channels
			for c := 0; c < o.Channels; c++ {
				o.Acc[base+c] /= w
			}
		}
	}
	o.finalized = true
}

func (o *OutputImage)value(x, y, c int) float64 {
	if c >= o.Channels { c = o.Channels - 1 }
	return o.Acc[(y*o.W+x)*o.Channels+c]
}

// Image renders the finalized stack as 16-bit RGBA. Mono stacks
// replicate the single plane.
func (o *OutputImage)Image() (*image.RGBA64, error) {
	if !o.finalized {
		return nil, ErrNotFinalized
	}
	img := image.NewRGBA64(image.Rect(0, 0, o.W, o.H))
	for y := 0; y < o.H; y++ {
		for x := 0; x < o.W; x++ {
			img.SetRGBA64(x, y, color.RGBA64{
				R: clamp16(o.value(x, y, 0)),
				G: clamp16(o.value(x, y, 1)),
				B: clamp16(o.value(x, y, 2)),
				A: 0xffff,
			})
		}
	}
	return img, nil
}

func clamp16(v float64) uint16 {
	if v < 0 { v = 0 }
	if v > 65535 { v = 65535 }
	return uint16(math.Round(v))
}

func (o *OutputImage)WritePNG(filename string) error {
	img, err := o.Image()
	if err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("WritePNG create %s: %v", filename, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("WritePNG encode %s: %v", filename, err)
	}
	return nil
}

// hdrStack adapts a finalized OutputImage to hdr.Image so it can be
// handed to the radiance codec without quantizing to 16 bits first.
type hdrStack struct {
	o *OutputImage
}

func (h hdrStack)ColorModel() color.Model { return hdrcolor.RGBModel }
func (h hdrStack)Bounds() image.Rectangle { return image.Rect(0, 0, h.o.W, h.o.H) }
func (h hdrStack)Size() int               { return h.o.W * h.o.H }
func (h hdrStack)At(x, y int) color.Color { return h.HDRAt(x, y) }
func (h hdrStack)HDRAt(x, y int) hdrcolor.Color {
	return hdrcolor.RGB{
		R: h.o.value(x, y, 0) / 65535.0,
		G: h.o.value(x, y, 1) / 65535.0,
		B: h.o.value(x, y, 2) / 65535.0,
	}
}

// WriteHDR writes the finalized stack as radiance RGBE, preserving
// the full accumulated precision.
func (o *OutputImage)WriteHDR(filename string) error {
	if !o.finalized {
		return ErrNotFinalized
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("WriteHDR create %s: %v", filename, err)
	}
	defer f.Close()
	var img hdr.Image = hdrStack{o}
	if err := rgbe.Encode(f, img); err != nil {
		return fmt.Errorf("WriteHDR encode %s: %v", filename, err)
	}
	return nil
}
