package lmath

// Blend windows for patch accumulation. Each patch's contribution to
// the output ramps down linearly from its center towards its borders,
// so overlapping patches cross-fade without visible seams.

// Ramp returns a weight vector of the given length: starting near zero
// at index 0, rising to 1.0 at `center`, and falling back towards zero
// at the far end. When extendLow/extendHigh is set the corresponding
// ramp is replaced with a constant 1, used when the patch touches the
// frame border and there is no neighbour to blend with.
func Ramp(length, center int, extendLow, extendHigh bool) []float64 {
	if center < 0 { center = 0 }
	if center > length-1 { center = length - 1 }

	weights := make([]float64, length)
	for i := 0; i < center; i++ {
		if extendLow {
			weights[i] = 1.0
		} else {
			weights[i] = float64(i+1) / float64(center+1)
		}
	}
	for i := center; i < length; i++ {
		if extendHigh {
			weights[i] = 1.0
		} else {
			weights[i] = float64(length-i) / float64(length-center)
		}
	}
	return weights
}

// PatchWindow builds a 2D blend window as the pointwise minimum of the
// per-axis ramps centered on (cx,cy).
func PatchWindow(w, h, cx, cy int, extendLeft, extendRight, extendTop, extendBottom bool) *FloatGrid {
	wx := Ramp(w, cx, extendLeft, extendRight)
	wy := Ramp(h, cy, extendTop, extendBottom)

	win := NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := wx[x]
			if wy[y] < v { v = wy[y] }
			win.Set(x, y, v)
		}
	}
	return win
}
