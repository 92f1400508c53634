package trackdb

import (
	"fmt"

	"github.com/google/uuid"
)

// FlowQueue is a single tracking job: propagate one marker forward from a
// seed pixel position over a frame range on one camera view. Queues are
// created by the external labeling stage, consumed exactly once by the
// optical-flow tracker, and kept in the store as a history log.
type FlowQueue struct {
	QueueID    string
	CameraID   int
	RingIndex  int
	Tag        string
	SeedX      float64
	SeedY      float64
	StartFrame int
	EndFrame   int // exclusive
	Processed  bool
}

// String formats the queue with enough context to re-run just this unit.
func (q FlowQueue) String() string {
	return fmt.Sprintf("queue %s cam=%d ring=%d tag=%s frames=[%d,%d) seed=(%.1f,%.1f)",
		q.QueueID, q.CameraID, q.RingIndex, q.Tag, q.StartFrame, q.EndFrame, q.SeedX, q.SeedY)
}

// AppendQueue records a job in the history log. A missing QueueID is
// assigned a fresh UUID; the assigned ID is written back to q.
func (s *Store) AppendQueue(q *FlowQueue) error {
	if q.QueueID == "" {
		q.QueueID = uuid.NewString()
	}
	if q.Tag == "" {
		return fmt.Errorf("append queue: empty tag")
	}
	if q.EndFrame < q.StartFrame {
		return fmt.Errorf("append queue %s: end frame %d before start frame %d", q.QueueID, q.EndFrame, q.StartFrame)
	}

	_, err := s.db.Exec(`
		INSERT INTO flow_queues (
			queue_id, camera_id, ring_index, tag,
			seed_x, seed_y, start_frame, end_frame, processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.QueueID, q.CameraID, q.RingIndex, q.Tag,
		q.SeedX, q.SeedY, q.StartFrame, q.EndFrame, boolToInt(q.Processed),
	)
	if err != nil {
		return fmt.Errorf("append queue %s: %w", q.QueueID, err)
	}
	return nil
}

// Queues returns the history log filtered by camera id and, when
// startFrame >= 0, by starting frame. Used to recover "what was tracked
// from this frame". Results come back in insertion order, so a
// re-acquisition job always runs after the job it corrects.
func (s *Store) Queues(cameraID, startFrame int) ([]FlowQueue, error) {
	query := `
		SELECT queue_id, camera_id, ring_index, tag,
			seed_x, seed_y, start_frame, end_frame, processed
		FROM flow_queues
		WHERE camera_id = ?`
	args := []interface{}{cameraID}

	if startFrame >= 0 {
		query += " AND start_frame = ?"
		args = append(args, startFrame)
	}
	// The created column only has second resolution; rowid is the
	// monotone insertion order.
	query += " ORDER BY rowid"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flow queues: %w", err)
	}
	defer rows.Close()

	var queues []FlowQueue
	for rows.Next() {
		var q FlowQueue
		var processed int
		if err := rows.Scan(
			&q.QueueID, &q.CameraID, &q.RingIndex, &q.Tag,
			&q.SeedX, &q.SeedY, &q.StartFrame, &q.EndFrame, &processed,
		); err != nil {
			return nil, fmt.Errorf("scan flow queue: %w", err)
		}
		q.Processed = processed != 0
		queues = append(queues, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow queues: %w", err)
	}

	return queues, nil
}

// PendingQueues returns unprocessed jobs for one camera, oldest first.
func (s *Store) PendingQueues(cameraID int) ([]FlowQueue, error) {
	queues, err := s.Queues(cameraID, -1)
	if err != nil {
		return nil, err
	}
	pending := queues[:0]
	for _, q := range queues {
		if !q.Processed {
			pending = append(pending, q)
		}
	}
	return pending, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
