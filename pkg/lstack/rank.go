package lstack

import(
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"luckystack/pkg/lframe"
)

// A Ranking is the outcome of scoring: the quality order of all
// frames, the retained usable subset, and the reference frame.
type Ranking struct {
	Order      []int     // all frame indices, descending score, ties by capture index
	Usable     []int     // retained subset of Order, same ordering
	Reference  int       // frame index of the best usable frame
	Normalized []float64 // per frame index, score / best score
}

// RankFrames scores every frame concurrently, sorts them and retains
// the configured best subset. The top scorer becomes the reference.
// Returns ErrInsufficientFrames when fewer than MinUsableFrames pass
// the quality threshold.
func RankFrames(ctx context.Context, fb *lframe.FrameBuffer, cfg Config) (*Ranking, error) {
	n := fb.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrInsufficientFrames)
	}

	var wg sync.WaitGroup
	sem := make(chan bool, cfg.Workers)
	for _, f := range fb.Frames {
		if ctx.Err() != nil { break }
		sem <- true
		wg.Add(1)
		go func(f *lframe.Frame) {
			defer func() { <-sem; wg.Done() }()
			f.Score = ScoreFrame(f, cfg)
		}(f)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	r := &Ranking{Order: make([]int, n)}
	for i := range r.Order { r.Order[i] = i }
	sort.SliceStable(r.Order, func(a, b int) bool {
		fa, fb2 := fb.Frames[r.Order[a]], fb.Frames[r.Order[b]]
		if fa.Score != fb2.Score { return fa.Score > fb2.Score }
		return fa.Index < fb2.Index // deterministic tie-break: earlier capture wins
	})

	retain := cfg.RetainCount
	if retain <= 0 {
		retain = int(float64(n)*cfg.RetainFraction + 0.5)
	}
	if retain < 1 { retain = 1 }
	if retain > n { retain = n }

	for _, idx := range r.Order[:retain] {
		if fb.Frames[idx].Score > cfg.MinQuality {
			fb.Frames[idx].Usable = true
			r.Usable = append(r.Usable, idx)
		}
	}

	if len(r.Usable) < cfg.MinUsableFrames {
		return nil, fmt.Errorf("%w: %d usable of %d (minimum %d)",
			ErrInsufficientFrames, len(r.Usable), n, cfg.MinUsableFrames)
	}

	r.Reference = r.Usable[0]
	best := fb.Frames[r.Reference].Score
	r.Normalized = make([]float64, n)
	for i, f := range fb.Frames {
		r.Normalized[i] = f.Score / best
	}

	if cfg.Verbosity > 0 {
		log.Printf("Ranked %d frames, retaining %d; reference is frame %d (score %.4g)\n",
			n, len(r.Usable), r.Reference, best)
	}

	return r, nil
}
