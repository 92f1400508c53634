// Package trackdb persists everything the tracking pipeline produces for
// one recorded run: per-camera pixel tracks, the flow queue history log,
// triangulated world tracks, capture timestamps, and the reconstructed
// posture arrays.
//
// The store is sqlite-backed, one database file per run. It must be
// opened (Initialize or Load) before any read or write and closed on
// scope exit; the design is single-process, batch-sequential.
package trackdb

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/softarm-vision/posture.report/internal/marker"

	_ "modernc.org/sqlite"
)

// schema.sql contains the SQL statements for creating the track store
// schema: run metadata, flow queue history, pixel/world tracks,
// timestamps and posture arrays.
//
//go:embed schema.sql
var schemaSQL string

// Sentinel errors callers branch on.
var (
	// ErrStoreMissing is returned by Load when the database file does
	// not exist.
	ErrStoreMissing = errors.New("track store file does not exist")

	// ErrRunMismatch is returned by Initialize when the store already
	// holds a run with different dimensions.
	ErrRunMismatch = errors.New("track store already initialised with different run dimensions")
)

// Obs is a single 2D pixel observation. Valid is false when the marker
// was not observed at that frame (occluded, lost, or never tracked).
type Obs struct {
	X, Y  float64
	Valid bool
}

// WorldObs is a single triangulated 3D observation.
type WorldObs struct {
	X, Y, Z float64
	Valid   bool
}

// Store is an open track store for one run.
type Store struct {
	db   *sql.DB
	path string

	RunID      string
	FrameCount int
	TagCount   int
	RingCount  int
}

// Initialize creates (or opens) the store at path and records the run
// dimensions. Re-initialising an existing store with identical dimensions
// is a no-op; differing dimensions return ErrRunMismatch so a run's data
// can never be silently resized.
func Initialize(path, runID string, frameCount int, markers *marker.MarkerPositions) (*Store, error) {
	if frameCount <= 0 {
		return nil, fmt.Errorf("frame count must be positive, got %d", frameCount)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open track store: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create track store schema: %w", err)
	}

	s := &Store{
		db:         db,
		path:       path,
		RunID:      runID,
		FrameCount: frameCount,
		TagCount:   markers.NumTags(),
		RingCount:  markers.NumCrossSections(),
	}

	var gotFrames, gotTags, gotRings int
	err = db.QueryRow(
		`SELECT frame_count, tag_count, ring_count FROM runs WHERE run_id = ?`, runID,
	).Scan(&gotFrames, &gotTags, &gotRings)
	switch {
	case err == sql.ErrNoRows:
		_, err = db.Exec(
			`INSERT INTO runs (run_id, frame_count, tag_count, ring_count) VALUES (?, ?, ?, ?)`,
			runID, frameCount, s.TagCount, s.RingCount,
		)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("record run %s: %w", runID, err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	default:
		if gotFrames != frameCount || gotTags != s.TagCount || gotRings != s.RingCount {
			db.Close()
			return nil, fmt.Errorf("run %s has [%d frames, %d tags, %d rings], requested [%d, %d, %d]: %w",
				runID, gotFrames, gotTags, gotRings, frameCount, s.TagCount, s.RingCount, ErrRunMismatch)
		}
	}

	return s, nil
}

// Load opens an existing store. Returns ErrStoreMissing when the file is
// absent rather than creating one on the fly.
func Load(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrStoreMissing)
		}
		return nil, fmt.Errorf("stat track store: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open track store: %w", err)
	}

	s := &Store{db: db, path: path}
	err = db.QueryRow(
		`SELECT run_id, frame_count, tag_count, ring_count FROM runs ORDER BY created LIMIT 1`,
	).Scan(&s.RunID, &s.FrameCount, &s.TagCount, &s.RingCount)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read run metadata: %w", err)
	}

	return s, nil
}

// Close flushes pending writes and releases the database handle. The
// store must not be used afterwards.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close track store: %w", err)
	}
	return nil
}

// Path returns the database file path backing the store.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying connection for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}
