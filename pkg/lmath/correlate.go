package lmath

import(
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// phaseCorrelationPeak computes the phase correlation surface of the
// two grids and locates its discrete peak. Both grids must have
// identical dimensions. Returns the surface (kept for sub-pixel
// refinement), the raw peak position, the peak value (0 for a
// degenerate surface), and a confidence in (0,1]: how much the peak
// stands out above the surface mean. A flat surface (decorrelated
// inputs) gives a confidence near zero.
func phaseCorrelationPeak(ref, img *FloatGrid) (a []complex128, px, py int, peak, conf float64) {
	w, h := ref.Dx(), ref.Dy()

	a = gridToComplex(ref)
	b := gridToComplex(img)
	fft2InPlace(a, w, h, true)
	fft2InPlace(b, w, h, true)

	// Cross-power spectrum, normalized per bin. conj(A)*B puts the
	// peak at the displacement of img relative to ref.
	const eps = 1e-12
	for i := range a {
		cross := cmplx.Conj(a[i]) * b[i]
		mag := cmplx.Abs(cross)
		if mag < eps { mag = eps }
		a[i] = cross / complex(mag, 0)
	}
	fft2InPlace(a, w, h, false)

	peak, sum := -math.MaxFloat64, 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := real(a[y*w+x])
			if v < 0 { v = 0 }
			sum += v
			if v > peak {
				peak, px, py = v, x, y
			}
		}
	}
	if peak <= eps { return a, 0, 0, 0, 0 }

	conf = 1.0 - (sum/float64(w*h))/peak
	if conf < 0 { conf = 0 }
	return a, px, py, peak, conf
}

// wrapOffset decodes a raw surface position: offsets beyond the
// halfway point wrap to negative shifts.
func wrapOffset(p, n int) int {
	if p > n/2 { return p - n }
	return p
}

// PhaseCorrelate estimates the whole-pixel translation that maps
// `img` onto `ref`.
func PhaseCorrelate(ref, img *FloatGrid) (dx, dy int, conf float64) {
	_, px, py, peak, conf := phaseCorrelationPeak(ref, img)
	if peak == 0 { return 0, 0, 0 }
	return wrapOffset(px, ref.Dx()), wrapOffset(py, ref.Dy()), conf
}

// PhaseCorrelateSubPixel refines the correlation peak to fractional
// precision via a parabolic fit along each axis.
func PhaseCorrelateSubPixel(ref, img *FloatGrid) (dx, dy float64, conf float64) {
	w, h := ref.Dx(), ref.Dy()
	a, px, py, peak, conf := phaseCorrelationPeak(ref, img)
	if peak == 0 { return 0, 0, 0 }

	at := func(x, y int) float64 {
		return real(a[((y+h)%h)*w+(x+w)%w])
	}
	fx := RefinePeak(at(px-1, py), peak, at(px+1, py))
	fy := RefinePeak(at(px, py-1), peak, at(px, py+1))

	return float64(wrapOffset(px, w)) + fx, float64(wrapOffset(py, h)) + fy, conf
}

// RefinePeak fits a parabola through three samples around a discrete
// correlation maximum and returns the fractional offset of the true
// peak, in (-0.5, 0.5). Degenerate fits return 0.
func RefinePeak(prev, peak, next float64) float64 {
	denom := prev - 2*peak + next
	if denom >= 0 || math.Abs(denom) < 1e-12 { return 0 } // not a maximum
	off := 0.5 * (prev - next) / denom
	if off > 0.5 { off = 0.5 }
	if off < -0.5 { off = -0.5 }
	return off
}

// WindowNCC computes the normalized cross-correlation between a w x h
// window of `ref` at (rx,ry) and a window of `img` at (ix,iy). Either
// window falling outside its grid, or having (near) zero variance,
// yields 0.
func WindowNCC(ref *FloatGrid, rx, ry int, img *FloatGrid, ix, iy, w, h int) float64 {
	if rx < 0 || ry < 0 || rx+w > ref.Dx() || ry+h > ref.Dy() { return 0 }
	if ix < 0 || iy < 0 || ix+w > img.Dx() || iy+h > img.Dy() { return 0 }

	n := float64(w * h)
	var sumA, sumB float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sumA += ref.Get(rx+x, ry+y)
			sumB += img.Get(ix+x, iy+y)
		}
	}
	meanA, meanB := sumA/n, sumB/n

	var cov, varA, varB float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			da := ref.Get(rx+x, ry+y) - meanA
			db := img.Get(ix+x, iy+y) - meanB
			cov += da * db
			varA += da * da
			varB += db * db
		}
	}

	if varA < 1e-12 || varB < 1e-12 { return 0 }
	return cov / math.Sqrt(varA*varB)
}

func gridToComplex(g *FloatGrid) []complex128 {
	vals := g.Values()
	out := make([]complex128, len(vals))
	for i, v := range vals {
		out[i] = complex(v, 0)
	}
	return out
}

// fft2InPlace runs a 2D FFT as a row pass followed by a column pass.
// The inverse direction leaves the usual n-fold scaling in place,
// which cancels out in the correlation peak ratio.
func fft2InPlace(a []complex128, w, h int, forward bool) {
	rowFFT := fourier.NewCmplxFFT(w)
	colFFT := fourier.NewCmplxFFT(h)

	for y := 0; y < h; y++ {
		row := a[y*w : (y+1)*w]
		if forward {
			rowFFT.Coefficients(row, row)
		} else {
			rowFFT.Sequence(row, row)
		}
	}

	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ { col[y] = a[y*w+x] }
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < h; y++ { a[y*w+x] = col[y] }
	}
}
