package lstack

import(
	"fmt"
	"image"
	"log"

	"luckystack/pkg/lframe"
	"luckystack/pkg/lmath"
)

// Tracking state per (patch, frame) pair.
type PairState uint8

const(
	Pending PairState = iota
	Tracked
	Rejected
)

// A Track is one (patch, frame) tracking result: the total sub-pixel
// displacement of the patch content in that frame (global + local
// warp), and the correlation confidence it was accepted with.
type Track struct {
	State      PairState
	Dx, Dy     float64
	Confidence float64
}

// An AlignmentPatch is a rectangular region on the reference frame,
// tracked independently across frames to follow local seeing
// distortion. Tracks is indexed by frame index (arena-style, one
// fixed-size record per frame) and is written only by the tracker,
// read only by the accumulator.
type AlignmentPatch struct {
	ID     int
	Region image.Rectangle   // patch bounds on the reference, clipped to the frame
	Core   image.Rectangle   // correlation box, centered in Region
	Valid  bool              // false for low-contrast patches
	Window *lmath.FloatGrid  // blend weights over Region

	Contrast float64
	Tracks   []Track

	refBox *lmath.FloatGrid // reference luminance under Core, cached for the tracker

	// Accumulation scratch, owned by exactly one worker at a time
	acc  []float64 // Region W*H*channels
	wsum []float64 // Region W*H, summed contribution weights
}

// A PatchGrid is the tessellation of the reference frame into
// overlapping patches.
type PatchGrid struct {
	Patches []*AlignmentPatch
	Cols    int
	Rows    int
}

// BuildPatchGrid tessellates the reference frame deterministically:
// patch origins advance by PatchSize-PatchOverlap, edge patches are
// clipped to the frame, and together the cores cover every reference
// pixel. Validity comes from the patch's local contrast relative to
// the mean patch contrast; flat patches would only feed noise into
// the correlation search.
func BuildPatchGrid(fb *lframe.FrameBuffer, r *Ranking, cfg Config) (*PatchGrid, error) {
	ref := fb.Frames[r.Reference]
	refLum := ref.BlurredLuminance()
	w, h := ref.W, ref.H

	size := cfg.PatchSize
	if size > w { size = w }
	if size > h { size = h }
	step := size - cfg.PatchOverlap
	if step < 1 { step = 1 }

	xs := patchOrigins(w, size, step)
	ys := patchOrigins(h, size, step)
	g := &PatchGrid{Cols: len(xs), Rows: len(ys)}
	nFrames := fb.Len()

	for _, oy := range ys {
		for _, ox := range xs {
			region := image.Rect(ox, oy, ox+size, oy+size)
			p := &AlignmentPatch{
				ID:     len(g.Patches),
				Region: region,
				Core:   coreBox(region, cfg),
				Tracks: make([]Track, nFrames),
			}
			p.Window = lmath.PatchWindow(size, size,
				size/2, size/2,
				region.Min.X == 0, region.Max.X == w,
				region.Min.Y == 0, region.Max.Y == h)
			p.Contrast = patchContrast(refLum, p.Core, cfg)
			g.Patches = append(g.Patches, p)
		}
	}

	if len(g.Patches) == 0 {
		return nil, fmt.Errorf("patch grid is empty for %dx%d frame, patchsize %d", w, h, size)
	}

	// Validity is relative to the typical contrast in this reference:
	// one threshold can't fit both lunar close-ups and dim planets.
	meanContrast := 0.0
	for _, p := range g.Patches { meanContrast += p.Contrast }
	meanContrast /= float64(len(g.Patches))

	valid := 0
	for _, p := range g.Patches {
		p.Valid = p.Contrast > cfg.MinPatchContrast*meanContrast && p.Contrast > 0
		if p.Valid {
			p.refBox = refLum.SubGrid(p.Core.Min.X, p.Core.Min.Y, p.Core.Dx(), p.Core.Dy())
			valid++
		}
	}

	if cfg.Verbosity > 0 {
		log.Printf("Patch grid %dx%d: %d patches of %dpx (overlap %d), %d valid\n",
			g.Cols, g.Rows, len(g.Patches), size, cfg.PatchOverlap, valid)
	}

	return g, nil
}

// patchOrigins steps origins across one axis; the final patch is
// pinned to the far edge so the grid always covers the full extent.
func patchOrigins(total, size, step int) []int {
	origins := []int{}
	for o := 0; o+size < total; o += step {
		origins = append(origins, o)
	}
	return append(origins, total-size)
}

// coreBox shrinks the region by the search radius on each side, so
// the tracker's shifted correlation windows stay within the frame for
// any in-budget displacement.
func coreBox(region image.Rectangle, cfg Config) image.Rectangle {
	inset := cfg.SearchRadius
	if region.Dx() <= 2*inset+8 || region.Dy() <= 2*inset+8 {
		inset = 0
	}
	return image.Rect(region.Min.X+inset, region.Min.Y+inset,
		region.Max.X-inset, region.Max.Y-inset)
}

func patchContrast(lum *lmath.FloatGrid, box image.Rectangle, cfg Config) float64 {
	sub := lum.SubGrid(box.Min.X, box.Min.Y, box.Dx(), box.Dy())
	_, sd := sub.MeanStdDev()
	if sd < 1e-9 { return 0 }
	return cfg.GetMetric().Score(sub, 1)
}

func (g *PatchGrid)ValidCount() int {
	n := 0
	for _, p := range g.Patches {
		if p.Valid { n++ }
	}
	return n
}
