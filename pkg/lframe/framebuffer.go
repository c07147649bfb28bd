package lframe

import(
	"errors"
	"fmt"
	"image"
)

// ErrDimensionMismatch means a frame disagrees with the rest of the
// sequence on dimensions, channels or bit depth. This is fatal to a
// run: the pipeline needs one consistent geometry.
var ErrDimensionMismatch = errors.New("frame dimensions inconsistent across sequence")

// A FrameBuffer owns the decoded frames of one capture session.
type FrameBuffer struct {
	Frames   []*Frame
	W, H     int
	Channels int
	BitDepth int
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{Frames: []*Frame{}}
}

func (fb *FrameBuffer)Add(f *Frame) error {
	if len(fb.Frames) == 0 {
		fb.W, fb.H, fb.Channels, fb.BitDepth = f.W, f.H, f.Channels, f.BitDepth
	} else if f.W != fb.W || f.H != fb.H || f.Channels != fb.Channels || f.BitDepth != fb.BitDepth {
		return fmt.Errorf("%w: frame %d is %dx%dx%d/%dbit, sequence is %dx%dx%d/%dbit",
			ErrDimensionMismatch, f.Index, f.W, f.H, f.Channels, f.BitDepth,
			fb.W, fb.H, fb.Channels, fb.BitDepth)
	}
	fb.Frames = append(fb.Frames, f)
	return nil
}

func (fb *FrameBuffer)Len() int { return len(fb.Frames) }

// NewFrameBufferFromImages is the adapter for callers who already hold
// decoded image.Image values, e.g. a video decoding collaborator.
func NewFrameBufferFromImages(imgs ...image.Image) (*FrameBuffer, error) {
	fb := NewFrameBuffer()
	for i, img := range imgs {
		f, err := FrameFromImage(i, img)
		if err != nil { return nil, err }
		if err := fb.Add(f); err != nil { return nil, err }
	}
	return fb, nil
}
