// Package posture reconstructs the 3D centre position and director frame
// of every cross-section over time from triangulated marker tracks, and
// caches the result in the track store.
package posture

import (
	"math"
)

// Series holds the reconstructed posture of a run: centre positions
// [T, 3, N] and director triads [T, 3, 3, N], flattened time-major with
// the cross-section index innermost, plus the capture timestamps [T].
// Entries that could not be reconstructed are NaN.
//
// SampleCounts records, per (timestep, cross-section), how many valid
// tags contributed to the fit, so callers can detect degenerate
// timesteps that would otherwise hide inside NaN arrays.
type Series struct {
	T int // timesteps
	N int // cross-sections

	Positions    []float64 // len T*3*N
	Directors    []float64 // len T*3*3*N
	Time         []float64 // len T
	SampleCounts []int     // len T*N
}

func newSeries(t, n int) *Series {
	s := &Series{
		T:            t,
		N:            n,
		Positions:    make([]float64, t*3*n),
		Directors:    make([]float64, t*9*n),
		Time:         make([]float64, t),
		SampleCounts: make([]int, t*n),
	}
	for i := range s.Positions {
		s.Positions[i] = math.NaN()
	}
	for i := range s.Directors {
		s.Directors[i] = math.NaN()
	}
	return s
}

// Position returns the centre of cross-section ring at timestep t.
func (s *Series) Position(t, ring int) [3]float64 {
	var out [3]float64
	for axis := 0; axis < 3; axis++ {
		out[axis] = s.Positions[(t*3+axis)*s.N+ring]
	}
	return out
}

func (s *Series) setPosition(t, ring int, p [3]float64) {
	for axis := 0; axis < 3; axis++ {
		s.Positions[(t*3+axis)*s.N+ring] = p[axis]
	}
}

// Director returns the director triad of cross-section ring at timestep
// t. Columns are the transformed local basis axes.
func (s *Series) Director(t, ring int) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = s.Directors[(t*9+i*3+j)*s.N+ring]
		}
	}
	return out
}

func (s *Series) setDirector(t, ring int, d [3][3]float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s.Directors[(t*9+i*3+j)*s.N+ring] = d[i][j]
		}
	}
}

// SampleCount returns the number of valid tags behind the fit at
// (timestep t, cross-section ring). Counts are only populated when the
// series was reconstructed in this process; a series loaded from the
// store reports zero everywhere.
func (s *Series) SampleCount(t, ring int) int {
	return s.SampleCounts[t*s.N+ring]
}
