package posture

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/mat"

	"github.com/softarm-vision/posture.report/internal/marker"
	"github.com/softarm-vision/posture.report/internal/trackdb"
)

// MinTagsForFit is the minimum number of valid tags for a
// well-conditioned affine fit: the regression solves for twelve
// parameters (a 3x3 map plus offset), so four non-collinear markers are
// the floor for a stable solution. Cross-section timesteps below this
// are rejected and left NaN rather than fitted unreliably.
const MinTagsForFit = 4

// ComputePositionsAndDirectors reconstructs the posture series from the
// triangulated world tracks in the store.
//
// For every cross-section and timestep it fits the affine model
// P ≈ A·R + b mapping each tag's reference ring offset R to its observed
// position P, then evaluates the model at the ring's local origin (the
// centre) and at its three basis axes (the director columns). Ordinary
// least squares via a minimum-norm SVD solve; no ML machinery involved.
func ComputePositionsAndDirectors(store *trackdb.Store, markers *marker.MarkerPositions) (*Series, error) {
	T := store.FrameCount
	N := markers.NumCrossSections()
	if N != store.RingCount {
		return nil, fmt.Errorf("marker description has %d cross-sections, store has %d", N, store.RingCount)
	}

	series := newSeries(T, N)

	ts, err := store.Timestamps()
	if err != nil {
		return nil, err
	}
	if len(ts) != T {
		return nil, fmt.Errorf("timestamps hold %d frames, store %d: capture sync stage incomplete", len(ts), T)
	}
	copy(series.Time, ts)

	for z := 0; z < N; z++ {
		// Gather the ring's reference offsets and observation series,
		// skipping tags that were never triangulated.
		var refs []marker.Vec3
		var tracks [][]trackdb.WorldObs
		for _, tag := range markers.Tags() {
			track, err := store.WorldTrack(z, tag)
			if err != nil {
				return nil, err
			}
			if track == nil {
				continue
			}
			ref, ok := markers.Offset(z, tag)
			if !ok {
				return nil, fmt.Errorf("ring %d: no reference offset for tag %s", z, tag)
			}
			refs = append(refs, ref)
			tracks = append(tracks, track)
		}

		origin, _ := markers.Origin(z)
		basis, _ := markers.Basis(z)

		for t := 0; t < T; t++ {
			var r [][3]float64
			var p [][3]float64
			for i, track := range tracks {
				o := track[t]
				if !o.Valid {
					continue
				}
				r = append(r, refs[i])
				p = append(p, [3]float64{o.X, o.Y, o.Z})
			}

			series.SampleCounts[t*N+z] = len(r)

			if len(r) == 0 {
				// Fully occluded timestep; stays NaN silently.
				continue
			}
			if len(r) < MinTagsForFit {
				log.Printf("ring %d frame %d: only %d valid tags (need %d), skipping degenerate fit", z, t, len(r), MinTagsForFit)
				continue
			}

			center, director, err := fitAffine(r, p, origin, basis)
			if err != nil {
				log.Printf("ring %d frame %d: fit failed: %v", z, t, err)
				continue
			}

			series.setPosition(t, z, center)
			series.setDirector(t, z, director)
		}
	}

	return series, nil
}

// fitAffine solves the least-squares system mapping reference offsets to
// observed positions and evaluates the fitted model at the local origin
// and basis axes. Minimum-norm SVD solve: a planar ring leaves the
// out-of-plane coefficients underdetermined and they must come out zero
// rather than failing the fit.
func fitAffine(r, p [][3]float64, origin marker.Vec3, basis [3]marker.Vec3) ([3]float64, [3][3]float64, error) {
	n := len(r)

	// Design matrix rows are [Rx, Ry, Rz, 1]; the trailing one carries
	// the offset b.
	a := mat.NewDense(n, 4, nil)
	b := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		a.SetRow(i, []float64{r[i][0], r[i][1], r[i][2], 1})
		b.SetRow(i, []float64{p[i][0], p[i][1], p[i][2]})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return [3]float64{}, [3][3]float64{}, fmt.Errorf("least squares factorization failed")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return [3]float64{}, [3][3]float64{}, fmt.Errorf("degenerate design matrix")
	}

	var coef mat.Dense
	svd.SolveTo(&coef, b, rank)

	predict := func(v marker.Vec3) [3]float64 {
		var out [3]float64
		for j := 0; j < 3; j++ {
			out[j] = v[0]*coef.At(0, j) + v[1]*coef.At(1, j) + v[2]*coef.At(2, j) + coef.At(3, j)
		}
		return out
	}

	center := predict(origin)

	// Director columns are the model evaluated at the local axes.
	var director [3][3]float64
	for i := 0; i < 3; i++ {
		axis := predict(basis[i])
		for j := 0; j < 3; j++ {
			director[j][i] = axis[j]
		}
	}

	return center, director, nil
}
