package lstack

import(
	"context"
	"errors"
	"math"
	"testing"
)

func trackTestPipeline(t *testing.T, shifts [][2]float64, cfg Config) (*PatchGrid, *Ranking) {
	t.Helper()
	fb := sceneBuffer(128, 128, shifts)
	ctx := context.Background()

	r, err := RankFrames(ctx, fb, cfg)
	if err != nil {
		t.Fatalf("RankFrames: %v", err)
	}
	if _, err := AlignFrames(ctx, fb, r, cfg); err != nil {
		t.Fatalf("AlignFrames: %v", err)
	}
	g, err := BuildPatchGrid(fb, r, cfg)
	if err != nil {
		t.Fatalf("BuildPatchGrid: %v", err)
	}
	if err := TrackPatches(ctx, fb, r, g, cfg); err != nil {
		t.Fatalf("TrackPatches: %v", err)
	}
	return g, r
}

func TestTrackPatchesRecoversShift(t *testing.T) {
	// Frame 1 is the whole scene displaced by (3,-2); with no local
	// distortion every patch should track that same displacement.
	g, r := trackTestPipeline(t, [][2]float64{{0, 0}, {3, -2}}, testConfig())

	other := 1
	if r.Reference == 1 { other = 0 }

	for _, p := range g.Patches {
		if !p.Valid { continue }
		tr := p.Tracks[other]
		if tr.State != Tracked {
			t.Errorf("patch %d: state %d, conf %.3f", p.ID, tr.State, tr.Confidence)
			continue
		}
		want := [2]float64{3, -2}
		if r.Reference == 1 { want = [2]float64{-3, 2} }
		if math.Abs(tr.Dx-want[0]) > 0.3 || math.Abs(tr.Dy-want[1]) > 0.3 {
			t.Errorf("patch %d: tracked (%.2f,%.2f), want (%g,%g)",
				p.ID, tr.Dx, tr.Dy, want[0], want[1])
		}
		if tr.Confidence < 0.9 {
			t.Errorf("patch %d: confidence %.3f", p.ID, tr.Confidence)
		}
	}
}

func TestTrackPatchesReferenceIsExact(t *testing.T) {
	g, r := trackTestPipeline(t, [][2]float64{{0, 0}, {1, 1}}, testConfig())
	for _, p := range g.Patches {
		if !p.Valid { continue }
		tr := p.Tracks[r.Reference]
		if tr.State != Tracked || tr.Dx != 0 || tr.Dy != 0 || tr.Confidence != 1.0 {
			t.Errorf("patch %d vs reference: %+v", p.ID, tr)
		}
	}
}

func TestTrackPatchesSubPixel(t *testing.T) {
	g, r := trackTestPipeline(t, [][2]float64{{0, 0}, {1.5, 0.5}}, testConfig())

	other := 1
	if r.Reference == 1 { other = 0 }
	sign := 1.0
	if r.Reference == 1 { sign = -1.0 }

	// Averaged over all patches the fractional part should survive
	// the parabolic refinement.
	sumDx, sumDy, n := 0.0, 0.0, 0
	for _, p := range g.Patches {
		if !p.Valid || p.Tracks[other].State != Tracked { continue }
		sumDx += p.Tracks[other].Dx
		sumDy += p.Tracks[other].Dy
		n++
	}
	if n == 0 {
		t.Fatalf("no tracked patches")
	}
	if got := sumDx / float64(n); math.Abs(got-sign*1.5) > 0.3 {
		t.Errorf("mean dx = %.3f, want %.1f", got, sign*1.5)
	}
	if got := sumDy / float64(n); math.Abs(got-sign*0.5) > 0.3 {
		t.Errorf("mean dy = %.3f, want %.1f", got, sign*0.5)
	}
}

// A derotated frame goes through tracking like any other: its
// luminance caches must already be warm when the per-patch workers
// start reading them concurrently (caught by the race detector when
// they are not).
func TestTrackPatchesAfterDerotation(t *testing.T) {
	fb := sceneBuffer(128, 128, [][2]float64{{0, 0}, {1, 0}, {0, 1}})
	cfg := testConfig()
	cfg.Workers = 4
	ctx := context.Background()

	r, err := RankFrames(ctx, fb, cfg)
	if err != nil { t.Fatalf("RankFrames: %v", err) }
	if _, err := AlignFrames(ctx, fb, r, cfg); err != nil { t.Fatalf("AlignFrames: %v", err) }

	for _, idx := range r.Usable {
		if idx == r.Reference { continue }
		fb.Frames[idx].Derotate(0.5)
	}

	g, err := BuildPatchGrid(fb, r, cfg)
	if err != nil { t.Fatalf("BuildPatchGrid: %v", err) }
	if err := TrackPatches(ctx, fb, r, g, cfg); err != nil { t.Fatalf("TrackPatches: %v", err) }

	tracked, _ := g.trackCounts()
	if tracked == 0 {
		t.Fatalf("no pairs tracked after derotation")
	}
}

// A frame where clouds wiped out half the field: the reference keeps
// its texture there, so the patches stay valid, but every pair against
// the occluded frame must be rejected and contribute nothing.
func TestTrackPatchesOccludedFrameRejected(t *testing.T) {
	fb := sceneBuffer(128, 128, [][2]float64{{0, 0}, {0, 0}, {0, 0}})
	occluded := fb.Frames[2]
	for y := 0; y < 128; y++ {
		for x := 48; x < 128; x++ { occluded.Pix[0][y*128+x] = 18000 }
	}

	cfg := testConfig()
	ctx := context.Background()
	r, err := RankFrames(ctx, fb, cfg)
	if err != nil { t.Fatalf("RankFrames: %v", err) }
	if _, err := AlignFrames(ctx, fb, r, cfg); err != nil { t.Fatalf("AlignFrames: %v", err) }
	g, err := BuildPatchGrid(fb, r, cfg)
	if err != nil { t.Fatalf("BuildPatchGrid: %v", err) }
	if err := TrackPatches(ctx, fb, r, g, cfg); err != nil { t.Fatalf("TrackPatches: %v", err) }

	if r.Reference == 2 {
		t.Fatalf("occluded frame became the reference")
	}
	sawRejection := false
	for _, p := range g.Patches {
		if !p.Valid { continue }
		tr := p.Tracks[2]
		if p.Region.Min.X >= 64 {
			if tr.State != Rejected {
				t.Errorf("patch %d over occlusion: state %d conf %.3f", p.ID, tr.State, tr.Confidence)
			}
			sawRejection = true
		}
		if p.Region.Max.X <= 40 && tr.State != Tracked {
			t.Errorf("patch %d clear of occlusion: state %d conf %.3f", p.ID, tr.State, tr.Confidence)
		}
	}
	if !sawRejection {
		t.Fatalf("no valid patches over the occluded half")
	}
}

func TestTrackPatchesInvalidPatchesStayPending(t *testing.T) {
	fb := sceneBuffer(128, 128, [][2]float64{{0, 0}, {1, 0}})
	f := fb.Frames[0]
	for y := 0; y < 128; y++ {
		for x := 64; x < 128; x++ { f.Pix[0][y*128+x] = 15000 }
	}
	f2 := fb.Frames[1]
	for y := 0; y < 128; y++ {
		for x := 64; x < 128; x++ { f2.Pix[0][y*128+x] = 15000 }
	}

	cfg := testConfig()
	ctx := context.Background()
	r, err := RankFrames(ctx, fb, cfg)
	if err != nil { t.Fatalf("RankFrames: %v", err) }
	if _, err := AlignFrames(ctx, fb, r, cfg); err != nil { t.Fatalf("AlignFrames: %v", err) }
	g, err := BuildPatchGrid(fb, r, cfg)
	if err != nil { t.Fatalf("BuildPatchGrid: %v", err) }
	if err := TrackPatches(ctx, fb, r, g, cfg); err != nil { t.Fatalf("TrackPatches: %v", err) }

	for _, p := range g.Patches {
		if p.Valid { continue }
		for i, tr := range p.Tracks {
			if tr.State != Pending {
				t.Errorf("invalid patch %d frame %d state %d", p.ID, i, tr.State)
			}
		}
	}
}

func TestTrackPatchesCancellation(t *testing.T) {
	fb := sceneBuffer(128, 128, [][2]float64{{0, 0}, {1, 1}})
	ctx := context.Background()
	cfg := testConfig()
	r, err := RankFrames(ctx, fb, cfg)
	if err != nil { t.Fatalf("RankFrames: %v", err) }
	if _, err := AlignFrames(ctx, fb, r, cfg); err != nil { t.Fatalf("AlignFrames: %v", err) }
	g, err := BuildPatchGrid(fb, r, cfg)
	if err != nil { t.Fatalf("BuildPatchGrid: %v", err) }

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := TrackPatches(cancelled, fb, r, g, cfg); !errors.Is(err, ErrCancelled) {
		t.Errorf("cancelled tracking: err = %v", err)
	}
}
