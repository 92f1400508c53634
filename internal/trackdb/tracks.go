package trackdb

import (
	"fmt"
)

// SaveFlowTrajectory writes one job's resulting pixel series in a single
// transaction and marks the queue processed. obs[i] is the observation at
// frame q.StartFrame+i and must cover [StartFrame, EndFrame).
//
// Frames in (StartFrame, EndFrame) are pre-cleared before the new samples
// are written so stale values from prior tracking passes never leak
// through frames where this pass lost the point. The seed frame itself is
// only overwritten when the job observed it.
func (s *Store) SaveFlowTrajectory(q FlowQueue, obs []Obs) error {
	want := q.EndFrame - q.StartFrame
	if len(obs) != want {
		return fmt.Errorf("save trajectory %s: got %d samples, want %d", q.QueueID, len(obs), want)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save trajectory %s: begin tx: %w", q.QueueID, err)
	}

	_, err = tx.Exec(
		`DELETE FROM pixel_tracks
		 WHERE camera_id = ? AND ring_index = ? AND tag = ? AND frame > ? AND frame < ?`,
		q.CameraID, q.RingIndex, q.Tag, q.StartFrame, q.EndFrame,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save trajectory %s: pre-clear: %w", q.QueueID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO pixel_tracks (camera_id, ring_index, tag, frame, px, py)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save trajectory %s: prepare: %w", q.QueueID, err)
	}
	defer stmt.Close()

	for i, o := range obs {
		if !o.Valid {
			continue
		}
		frame := q.StartFrame + i
		if _, err := stmt.Exec(q.CameraID, q.RingIndex, q.Tag, frame, o.X, o.Y); err != nil {
			tx.Rollback()
			return fmt.Errorf("save trajectory %s: frame %d: %w", q.QueueID, frame, err)
		}
	}

	_, err = tx.Exec(`UPDATE flow_queues SET processed = 1 WHERE queue_id = ?`, q.QueueID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("save trajectory %s: mark processed: %w", q.QueueID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save trajectory %s: commit: %w", q.QueueID, err)
	}
	return nil
}

// PixelTrack returns the full-length pixel series of one marker on one
// camera. Frames without a stored sample come back with Valid=false.
func (s *Store) PixelTrack(cameraID, ringIndex int, tag string) ([]Obs, error) {
	rows, err := s.db.Query(`
		SELECT frame, px, py FROM pixel_tracks
		WHERE camera_id = ? AND ring_index = ? AND tag = ?
		ORDER BY frame`,
		cameraID, ringIndex, tag,
	)
	if err != nil {
		return nil, fmt.Errorf("query pixel track cam=%d ring=%d tag=%s: %w", cameraID, ringIndex, tag, err)
	}
	defer rows.Close()

	track := make([]Obs, s.FrameCount)
	for rows.Next() {
		var frame int
		var px, py float64
		if err := rows.Scan(&frame, &px, &py); err != nil {
			return nil, fmt.Errorf("scan pixel sample: %w", err)
		}
		if frame < 0 || frame >= s.FrameCount {
			continue
		}
		track[frame] = Obs{X: px, Y: py, Valid: true}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pixel track: %w", err)
	}

	return track, nil
}

// PutWorldTrack replaces the triangulated 3D series of one marker.
// obs[i] is the observation at frame i; invalid samples are stored as
// missing rows. Write isolation mirrors SaveFlowTrajectory: one
// transaction per (ring, tag) series.
func (s *Store) PutWorldTrack(ringIndex int, tag string, obs []WorldObs) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put world track ring=%d tag=%s: begin tx: %w", ringIndex, tag, err)
	}

	_, err = tx.Exec(`DELETE FROM world_tracks WHERE ring_index = ? AND tag = ?`, ringIndex, tag)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("put world track ring=%d tag=%s: clear: %w", ringIndex, tag, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO world_tracks (ring_index, tag, frame, x, y, z)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("put world track ring=%d tag=%s: prepare: %w", ringIndex, tag, err)
	}
	defer stmt.Close()

	for frame, o := range obs {
		if !o.Valid {
			continue
		}
		if _, err := stmt.Exec(ringIndex, tag, frame, o.X, o.Y, o.Z); err != nil {
			tx.Rollback()
			return fmt.Errorf("put world track ring=%d tag=%s: frame %d: %w", ringIndex, tag, frame, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put world track ring=%d tag=%s: commit: %w", ringIndex, tag, err)
	}
	return nil
}

// WorldTrack returns the full-length triangulated series of one marker,
// or nil when the marker has no stored samples at all (the tag was never
// triangulated for this ring).
func (s *Store) WorldTrack(ringIndex int, tag string) ([]WorldObs, error) {
	rows, err := s.db.Query(`
		SELECT frame, x, y, z FROM world_tracks
		WHERE ring_index = ? AND tag = ?
		ORDER BY frame`,
		ringIndex, tag,
	)
	if err != nil {
		return nil, fmt.Errorf("query world track ring=%d tag=%s: %w", ringIndex, tag, err)
	}
	defer rows.Close()

	track := make([]WorldObs, s.FrameCount)
	any := false
	for rows.Next() {
		var frame int
		var x, y, z float64
		if err := rows.Scan(&frame, &x, &y, &z); err != nil {
			return nil, fmt.Errorf("scan world sample: %w", err)
		}
		if frame < 0 || frame >= s.FrameCount {
			continue
		}
		track[frame] = WorldObs{X: x, Y: y, Z: z, Valid: true}
		any = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate world track: %w", err)
	}

	if !any {
		return nil, nil
	}
	return track, nil
}

// PutTimestamps replaces the shared capture timestamp series. ts[i] is
// the capture time of frame i in seconds.
func (s *Store) PutTimestamps(ts []float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put timestamps: begin tx: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM timestamps`); err != nil {
		tx.Rollback()
		return fmt.Errorf("put timestamps: clear: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO timestamps (frame, t) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("put timestamps: prepare: %w", err)
	}
	defer stmt.Close()

	for frame, t := range ts {
		if _, err := stmt.Exec(frame, t); err != nil {
			tx.Rollback()
			return fmt.Errorf("put timestamps: frame %d: %w", frame, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put timestamps: commit: %w", err)
	}
	return nil
}

// Timestamps returns the stored capture timestamps ordered by frame.
func (s *Store) Timestamps() ([]float64, error) {
	rows, err := s.db.Query(`SELECT t FROM timestamps ORDER BY frame`)
	if err != nil {
		return nil, fmt.Errorf("query timestamps: %w", err)
	}
	defer rows.Close()

	var ts []float64
	for rows.Next() {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan timestamp: %w", err)
		}
		ts = append(ts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timestamps: %w", err)
	}

	return ts, nil
}
