package posture

import (
	"fmt"
	"log"

	"github.com/softarm-vision/posture.report/internal/marker"
	"github.com/softarm-vision/posture.report/internal/trackdb"
)

// PostureData memoizes the reconstructed posture series in the track
// store. Reconstruction is O(T·N) least-squares fits, so recomputation
// only happens when either stored array is absent, in which case both
// are regenerated and written together, never independently.
type PostureData struct {
	store   *trackdb.Store
	markers *marker.MarkerPositions

	series *Series
}

// NewPostureData wraps an open store and marker description.
func NewPostureData(store *trackdb.Store, markers *marker.MarkerPositions) *PostureData {
	return &PostureData{store: store, markers: markers}
}

// LoadPositionsAndDirectors returns the posture series, loading the
// stored arrays when both exist and recomputing (and persisting) both
// otherwise. Repeated calls reuse the in-memory series.
func (p *PostureData) LoadPositionsAndDirectors() (*Series, error) {
	if p.series != nil {
		return p.series, nil
	}

	positions, directors, ok, err := p.store.LoadPosture()
	if err != nil {
		return nil, err
	}

	if ok {
		ts, err := p.store.Timestamps()
		if err != nil {
			return nil, err
		}
		if len(ts) != p.store.FrameCount {
			return nil, fmt.Errorf("timestamps hold %d frames, store %d: capture sync stage incomplete", len(ts), p.store.FrameCount)
		}

		s := &Series{
			T:            p.store.FrameCount,
			N:            p.store.RingCount,
			Positions:    positions,
			Directors:    directors,
			Time:         ts,
			SampleCounts: make([]int, p.store.FrameCount*p.store.RingCount),
		}
		p.series = s
		return s, nil
	}

	log.Printf("posture arrays absent, computing positions and directors for run %s", p.store.RunID)
	s, err := ComputePositionsAndDirectors(p.store, p.markers)
	if err != nil {
		return nil, err
	}
	p.series = s

	if err := p.SavePositionsAndDirectors(); err != nil {
		return nil, err
	}
	return s, nil
}

// SavePositionsAndDirectors persists the in-memory series. Both arrays
// go in one transaction with unit annotation "m".
func (p *PostureData) SavePositionsAndDirectors() error {
	if p.series == nil {
		return fmt.Errorf("no posture series to save: call LoadPositionsAndDirectors first")
	}
	if err := p.store.SavePosture(p.series.Positions, p.series.Directors); err != nil {
		return err
	}
	log.Printf("posture saved for run %s", p.store.RunID)
	return nil
}

// Recompute discards any cached series, reconstructs from the current
// world tracks, and replaces both stored arrays. Used after new world
// tracks are ingested; the stale arrays are never served once this
// returns.
func (p *PostureData) Recompute() (*Series, error) {
	s, err := ComputePositionsAndDirectors(p.store, p.markers)
	if err != nil {
		return nil, err
	}
	p.series = s
	if err := p.SavePositionsAndDirectors(); err != nil {
		return nil, err
	}
	return s, nil
}
