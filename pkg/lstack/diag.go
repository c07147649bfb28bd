package lstack

import(
	"fmt"
	"math"

	"github.com/fogleman/gg"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Diagnostic renderings of the patch grid, for eyeballing why a stack
// came out soft: which patches were rejected as flat, and how much
// local motion the tracker measured where.

var(
	diagCold = colorful.Color{R: 0.15, G: 0.25, B: 0.8}
	diagHot  = colorful.Color{R: 0.95, G: 0.3, B: 0.1}
)

// WritePatchDiag draws the patch tessellation: valid patches shaded
// by their relative contrast, invalid ones crossed out.
func (g *PatchGrid)WritePatchDiag(w, h int, filename string) error {
	dc := gg.NewContext(w, h)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	maxContrast := 0.0
	for _, p := range g.Patches {
		if p.Contrast > maxContrast { maxContrast = p.Contrast }
	}

	for _, p := range g.Patches {
		x, y := float64(p.Region.Min.X), float64(p.Region.Min.Y)
		pw, ph := float64(p.Region.Dx()), float64(p.Region.Dy())

		if p.Valid && maxContrast > 0 {
			c := diagCold.BlendHcl(diagHot, p.Contrast/maxContrast).Clamped()
			dc.SetColor(c)
			dc.DrawRectangle(x, y, pw, ph)
			dc.Fill()
		} else {
			dc.SetRGB(0.3, 0.3, 0.3)
			dc.DrawLine(x, y, x+pw, y+ph)
			dc.DrawLine(x+pw, y, x, y+ph)
			dc.Stroke()
		}

		dc.SetRGB(1, 1, 1)
		dc.DrawRectangle(x, y, pw, ph)
		dc.Stroke()
		dc.DrawString(fmt.Sprintf("%d", p.ID), x+3, y+13)
	}

	return dc.SavePNG(filename)
}

// WriteShiftDiag colors each valid patch by its mean tracked shift
// magnitude, cold (small) to hot (large). Patches with no tracked
// pairs stay black.
func (g *PatchGrid)WriteShiftDiag(w, h int, filename string) error {
	dc := gg.NewContext(w, h)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	means := make([]float64, len(g.Patches))
	maxMean := 0.0
	for i, p := range g.Patches {
		if !p.Valid { continue }
		n := 0
		for _, t := range p.Tracks {
			if t.State != Tracked { continue }
			means[i] += math.Hypot(t.Dx, t.Dy)
			n++
		}
		if n > 0 { means[i] /= float64(n) }
		if means[i] > maxMean { maxMean = means[i] }
	}

	for i, p := range g.Patches {
		if !p.Valid || maxMean == 0 { continue }
		c := diagCold.BlendHcl(diagHot, means[i]/maxMean).Clamped()
		dc.SetColor(c)
		dc.DrawRectangle(float64(p.Region.Min.X), float64(p.Region.Min.Y),
			float64(p.Region.Dx()), float64(p.Region.Dy()))
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawString(fmt.Sprintf("%.1f", means[i]),
			float64(p.Region.Min.X)+3, float64(p.Region.Min.Y)+13)
	}

	return dc.SavePNG(filename)
}
