package report

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gridline-data/corridor.report/internal/towers"
)

// viridis ramp for the height visual map.
var overviewColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// WriteOverview renders an interactive HTML scatter of tower centers
// coloured by height.
func WriteOverview(path string, recs []towers.TowerRecord) error {
	data := make([]opts.ScatterData, 0, len(recs))
	var minX, maxX, minY, maxY, maxHeight float64
	for i, rec := range recs {
		c := rec.Box.Center
		if i == 0 {
			minX, maxX, minY, maxY = c.X, c.X, c.Y, c.Y
		}
		minX = min(minX, c.X)
		maxX = max(maxX, c.X)
		minY = min(minY, c.Y)
		maxY = max(maxY, c.Y)
		maxHeight = max(maxHeight, rec.HeightM)
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("#%d", rec.Seq),
			Value: []interface{}{c.X, c.Y, rec.HeightM},
		})
	}
	if maxHeight <= 0 {
		maxHeight = 1
	}
	xLo, xHi := padRange(minX, maxX)
	yLo, yHi := padRange(minY, maxY)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tower Overview", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tower Centers", Subtitle: fmt.Sprintf("towers=%d", len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: xLo, Max: xHi, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: yLo, Max: yHi, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxHeight),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: overviewColors},
		}),
	)
	scatter.AddSeries("towers", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("render overview: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write overview: %w", err)
	}
	return nil
}

// padRange widens a data interval so symbols at the extremes are not drawn
// on the plot border.
func padRange(lo, hi float64) (float64, float64) {
	pad := (hi - lo) * 0.1
	if pad < 10 {
		pad = 10
	}
	return lo - pad, hi + pad
}
