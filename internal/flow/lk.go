package flow

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Point is a 2D pixel position.
type Point struct {
	X, Y float64
}

// Config holds the pyramidal Lucas-Kanade parameters. It is immutable
// once passed to a Tracker; runs record their settings via the tuning
// file rather than mutating shared state.
type Config struct {
	PyramidLevels   int     // number of pyramid levels
	WindowRadius    int     // integration window is (2r+1) x (2r+1)
	MaxIterations   int     // iteration cap per pyramid level
	Epsilon         float64 // stop when the update step falls below this
	MinEigThreshold float64 // minimum normalised eigenvalue of the gradient matrix
}

// DefaultConfig returns flow configuration loaded from the canonical
// defaults file (config/flow.defaults.json). Panics if the file cannot
// be found; intended for tests and binaries that have already validated
// config availability.
func DefaultConfig() Config {
	return ConfigFromTuning(mustTuning())
}

// trackPoints advances a batch of points from the previous frame to the
// next via OpenCV's pyramidal iterative Lucas-Kanade. ok[i] reports
// whether point i survived; a failed status means the point left the
// image or its neighbourhood carried too little texture to constrain
// the flow, and the input position is passed through unchanged.
func trackPoints(prev, next *image.Gray, pts []Point, cfg Config) ([]Point, []bool, error) {
	if len(pts) == 0 {
		return nil, nil, nil
	}

	prevMat, err := gocv.ImageGrayToMatGray(prev)
	if err != nil {
		return nil, nil, fmt.Errorf("convert previous frame: %w", err)
	}
	defer prevMat.Close()

	nextMat, err := gocv.ImageGrayToMatGray(next)
	if err != nil {
		return nil, nil, fmt.Errorf("convert next frame: %w", err)
	}
	defer nextMat.Close()

	prevPts := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	defer prevPts.Close()
	for i, p := range pts {
		prevPts.SetFloatAt(i, 0, float32(p.X))
		prevPts.SetFloatAt(i, 1, float32(p.Y))
	}

	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	flowErr := gocv.NewMat()
	defer flowErr.Close()

	win := 2*cfg.WindowRadius + 1
	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, cfg.MaxIterations, cfg.Epsilon)
	gocv.CalcOpticalFlowPyrLKWithParams(prevMat, nextMat, prevPts, nextPts, &status, &flowErr,
		image.Pt(win, win), cfg.PyramidLevels-1, criteria, 0, cfg.MinEigThreshold)

	out := make([]Point, len(pts))
	ok := make([]bool, len(pts))
	for i := range pts {
		if i >= status.Rows() || status.GetUCharAt(i, 0) != 1 {
			out[i] = pts[i]
			continue
		}
		out[i] = Point{
			X: float64(nextPts.GetFloatAt(i, 0)),
			Y: float64(nextPts.GetFloatAt(i, 1)),
		}
		ok[i] = true
	}

	return out, ok, nil
}
