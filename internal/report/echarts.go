// Package report renders the reconstructed posture series for human
// inspection: an HTML page of per-axis centre trajectories (go-echarts)
// and static PNG trajectory plots (gonum/plot).
package report

import (
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/softarm-vision/posture.report/internal/posture"
)

var axisNames = [3]string{"X", "Y", "Z"}

// WriteHTML renders one line chart per axis, each with a series per
// cross-section, into a standalone HTML page at path. NaN entries
// (occluded or degenerate timesteps) become gaps in the lines.
func WriteHTML(series *posture.Series, path string) error {
	page := components.NewPage()
	page.SetPageTitle("Posture Report")

	for axis := 0; axis < 3; axis++ {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "420px"}),
			charts.WithTitleOpts(opts.Title{
				Title:    fmt.Sprintf("Cross-section centre %s (m)", axisNames[axis]),
				Subtitle: fmt.Sprintf("%d cross-sections over %d timesteps", series.N, series.T),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
			charts.WithYAxisOpts(opts.YAxis{Name: axisNames[axis] + " (m)"}),
		)

		xs := make([]string, series.T)
		for t := 0; t < series.T; t++ {
			xs[t] = fmt.Sprintf("%.3f", series.Time[t])
		}
		line.SetXAxis(xs)

		for ring := 0; ring < series.N; ring++ {
			data := make([]opts.LineData, series.T)
			for t := 0; t < series.T; t++ {
				v := series.Position(t, ring)[axis]
				if math.IsNaN(v) {
					data[t] = opts.LineData{Value: nil}
				} else {
					data[t] = opts.LineData{Value: v}
				}
			}
			line.AddSeries(fmt.Sprintf("ring %d", ring), data)
		}

		page.AddCharts(line)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("render posture report: %w", err)
	}
	return nil
}
