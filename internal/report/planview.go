package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gridline-data/corridor.report/internal/towers"
)

// Footprint display scales. At corridor scale a true-size footprint is a
// few pixels, so the plan view inflates rectangles for readability.
var inflationPresets = map[string]float64{
	"original":     1.0,
	"conservative": 1.25,
	"moderate":     1.6,
	"aggressive":   2.5,
}

// InflationFactor resolves a named footprint display preset.
func InflationFactor(name string) (float64, error) {
	f, ok := inflationPresets[name]
	if !ok {
		return 0, fmt.Errorf("unknown inflation preset %q", name)
	}
	return f, nil
}

var (
	footprintColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	centerColor    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// WritePlanView renders a PNG plan view: tower centers labelled by
// sequence, each with its box footprint scaled by inflate.
func WritePlanView(path string, recs []towers.TowerRecord, inflate float64) error {
	p := plot.New()
	p.Title.Text = "Tower Plan View"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	centers := make(plotter.XYs, 0, len(recs))
	labels := make([]string, 0, len(recs))
	for _, rec := range recs {
		centers = append(centers, plotter.XY{X: rec.Box.Center.X, Y: rec.Box.Center.Y})
		labels = append(labels, fmt.Sprintf("%d", rec.Seq))

		ring, err := plotter.NewLine(footprint(rec.Box, inflate))
		if err != nil {
			return fmt.Errorf("footprint %d: %w", rec.Seq, err)
		}
		ring.Color = footprintColor
		ring.Width = vg.Points(1)
		p.Add(ring)
	}

	if len(centers) > 0 {
		pts, err := plotter.NewScatter(centers)
		if err != nil {
			return fmt.Errorf("centers: %w", err)
		}
		pts.GlyphStyle.Color = centerColor
		pts.GlyphStyle.Radius = vg.Points(2)
		p.Add(pts)

		names, err := plotter.NewLabels(plotter.XYLabels{XYs: centers, Labels: labels})
		if err != nil {
			return fmt.Errorf("labels: %w", err)
		}
		p.Add(names)
	}

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save plan view: %w", err)
	}
	return nil
}

// footprint projects the box's horizontal cross-section onto the XY plane
// as a closed ring, scaled about the center.
func footprint(b towers.OBB, inflate float64) plotter.XYs {
	ax0 := b.Axis(0).Mul(b.Extents[0] * inflate / 2)
	ax1 := b.Axis(1).Mul(b.Extents[1] * inflate / 2)
	ring := make(plotter.XYs, 0, 5)
	for _, s := range [][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}, {-1, -1}} {
		c := b.Center.Add(ax0.Mul(s[0])).Add(ax1.Mul(s[1]))
		ring = append(ring, plotter.XY{X: c.X, Y: c.Y})
	}
	return ring
}
