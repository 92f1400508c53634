package flow

// Reappearance suggests where a lost marker might resurface so the
// external labeling UI can offer the operator both the last known
// position and a model-predicted one. The operator's confirmed or
// corrected pixel becomes the seed of a new flow queue continuing the
// same tag; no automatic re-detection is attempted.
type Reappearance struct {
	// window is the number of trailing valid samples used for the
	// constant-velocity estimate.
	window int
}

// NewReappearance creates a predictor with the given trailing window.
// Windows below 2 cannot estimate velocity and are raised to 2.
func NewReappearance(window int) *Reappearance {
	if window < 2 {
		window = 2
	}
	return &Reappearance{window: window}
}

// Suggestion pairs the last observed position of a track with a
// predicted position at the inquiry frame.
type Suggestion struct {
	Last      Point
	LastFrame int
	Predicted Point
}

// Predict extrapolates a track to the given frame. xs/ys/valid describe
// the per-frame observation series (same length); frame is the inquiry
// frame. Returns false when the track has no valid samples at all.
func (r *Reappearance) Predict(xs, ys []float64, valid []bool, frame int) (Suggestion, bool) {
	lastIdx := -1
	for i := len(valid) - 1; i >= 0; i-- {
		if valid[i] {
			lastIdx = i
			break
		}
	}
	if lastIdx < 0 {
		return Suggestion{}, false
	}

	last := Point{X: xs[lastIdx], Y: ys[lastIdx]}
	s := Suggestion{Last: last, LastFrame: lastIdx, Predicted: last}

	// Walk back through up to window valid samples for a velocity
	// estimate. A single sample predicts zero motion.
	firstIdx := lastIdx
	count := 1
	for i := lastIdx - 1; i >= 0 && count < r.window; i-- {
		if !valid[i] {
			continue
		}
		firstIdx = i
		count++
	}
	if firstIdx < lastIdx {
		span := float64(lastIdx - firstIdx)
		vx := (xs[lastIdx] - xs[firstIdx]) / span
		vy := (ys[lastIdx] - ys[firstIdx]) / span
		dt := float64(frame - lastIdx)
		s.Predicted = Point{X: last.X + vx*dt, Y: last.Y + vy*dt}
	}

	return s, true
}
