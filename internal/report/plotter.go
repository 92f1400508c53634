package report

import (
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/softarm-vision/posture.report/internal/posture"
)

// WriteTrajectoryPlots renders one PNG per axis into outputDir: the
// centre coordinate of every cross-section against time. NaN entries are
// dropped from the line data, so occluded spans show as gaps.
func WriteTrajectoryPlots(series *posture.Series, outputDir string) error {
	for axis := 0; axis < 3; axis++ {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Cross-section centre %s", axisNames[axis])
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = axisNames[axis] + " (m)"

		for ring := 0; ring < series.N; ring++ {
			pts := make(plotter.XYs, 0, series.T)
			for t := 0; t < series.T; t++ {
				v := series.Position(t, ring)[axis]
				if math.IsNaN(v) {
					continue
				}
				pts = append(pts, plotter.XY{X: series.Time[t], Y: v})
			}
			if len(pts) == 0 {
				continue
			}

			line, err := plotter.NewLine(pts)
			if err != nil {
				return fmt.Errorf("build line for ring %d axis %s: %w", ring, axisNames[axis], err)
			}
			line.Color = ringColor(ring)
			p.Add(line)
			p.Legend.Add(fmt.Sprintf("ring %d", ring), line)
		}

		out := filepath.Join(outputDir, fmt.Sprintf("centre_%s.png", axisNames[axis]))
		if err := p.Save(10*vg.Inch, 4*vg.Inch, out); err != nil {
			return fmt.Errorf("save plot %s: %w", out, err)
		}
	}
	return nil
}
