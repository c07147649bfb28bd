package lstack

import(
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/skypies/util/histogram"
	"gonum.org/v1/gonum/stat"

	"luckystack/pkg/lframe"
)

// A RunSummary reports what the stacker actually did: how many frames
// and patches fed the result, what it rejected along the way, and the
// spread of quality scores and measured shifts.
type RunSummary struct {
	FramesLoaded   int
	FramesUsable   int
	FramesRejected int // failed ranking or global alignment
	ReferenceIndex int

	PatchTotal   int
	PatchValid   int
	PairsTracked int
	PairsRejected int

	UndefinedPixels int
	Elapsed         time.Duration

	ScoreMean   float64
	ScoreStdDev float64

	scoreHist *histogram.Histogram
	shiftHist *hdrhistogram.Histogram
}

func newRunSummary() *RunSummary {
	return &RunSummary{
		scoreHist: &histogram.Histogram{NumBuckets: 20, ValMin: 0, ValMax: 100},
		// Shift magnitudes in hundredths of a pixel, up to 100px
		shiftHist: hdrhistogram.New(1, 10000, 3),
	}
}

func (s *RunSummary)recordScores(fb *lframe.FrameBuffer, r *Ranking) {
	scores := make([]float64, 0, fb.Len())
	for i := range fb.Frames {
		scores = append(scores, fb.Frames[i].Score)
		// Normalized scores land in [0,1]; histogram them as percent.
		pct := int(r.Normalized[i] * 100)
		if pct > 99 { pct = 99 }
		s.scoreHist.Add(histogram.ScalarVal(pct))
	}
	s.ScoreMean, s.ScoreStdDev = stat.MeanStdDev(scores, nil)
}

// recordShifts runs serially after tracking; the histogram is not
// safe for concurrent writes.
func (s *RunSummary)recordShifts(g *PatchGrid) {
	for _, p := range g.Patches {
		if !p.Valid { continue }
		for _, t := range p.Tracks {
			if t.State != Tracked { continue }
			mag := int64(math.Hypot(t.Dx, t.Dy) * 100)
			if mag < 1 { mag = 1 }
			if mag > 10000 { mag = 10000 }
			s.shiftHist.RecordValue(mag)
		}
	}
}

func (s *RunSummary)String() string {
	str := strings.Builder{}
	fmt.Fprintf(&str, "Stacked %d/%d frames (rejected %d) on reference frame %d in %s\n",
		s.FramesUsable, s.FramesLoaded, s.FramesRejected, s.ReferenceIndex,
		s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&str, "Patches: %d/%d valid; pairs: %d tracked, %d rejected\n",
		s.PatchValid, s.PatchTotal, s.PairsTracked, s.PairsRejected)
	fmt.Fprintf(&str, "Scores: mean %.4g, stddev %.4g\n", s.ScoreMean, s.ScoreStdDev)
	if s.shiftHist != nil && s.shiftHist.TotalCount() > 0 {
		fmt.Fprintf(&str, "Shift magnitude (px): p50 %.2f, p95 %.2f, max %.2f\n",
			float64(s.shiftHist.ValueAtQuantile(50))/100.0,
			float64(s.shiftHist.ValueAtQuantile(95))/100.0,
			float64(s.shiftHist.Max())/100.0)
	}
	if s.UndefinedPixels > 0 {
		fmt.Fprintf(&str, "Warning: %d output pixels had no tracked coverage\n", s.UndefinedPixels)
	}
	fmt.Fprintf(&str, "Score distribution (%% of best): %s", s.scoreHist)
	return str.String()
}
