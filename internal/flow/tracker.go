// Package flow propagates labeled marker positions through video frames
// with OpenCV's pyramidal iterative Lucas-Kanade optical flow (gocv).
// It consumes flow queues produced by the external labeling stage,
// advances every
// still-tracked point frame to frame, and writes the recovered pixel
// series into the track store.
//
// Point loss is a modeled outcome, not a fault: a point whose flow fails
// stays unknown for the remainder of its job and waits for a manual
// re-acquisition seed.
package flow

import (
	"fmt"
	"log"

	"github.com/softarm-vision/posture.report/internal/trackdb"
	"github.com/softarm-vision/posture.report/internal/video"
)

// Tracker runs flow queues against one camera's frame source.
type Tracker struct {
	cfg    Config
	source video.Source
	store  *trackdb.Store
}

// NewTracker creates a tracker with the given immutable configuration.
func NewTracker(cfg Config, source video.Source, store *trackdb.Store) *Tracker {
	return &Tracker{cfg: cfg, source: source, store: store}
}

// batch groups queues that share a camera and frame range so their points
// advance together in a single pass over the video.
type batch struct {
	cameraID   int
	startFrame int
	endFrame   int
	queues     []trackdb.FlowQueue
}

func batchQueues(queues []trackdb.FlowQueue) []batch {
	var batches []batch
	index := make(map[[3]int]int)
	for _, q := range queues {
		key := [3]int{q.CameraID, q.StartFrame, q.EndFrame}
		if i, ok := index[key]; ok {
			batches[i].queues = append(batches[i].queues, q)
			continue
		}
		index[key] = len(batches)
		batches = append(batches, batch{
			cameraID:   q.CameraID,
			startFrame: q.StartFrame,
			endFrame:   q.EndFrame,
			queues:     []trackdb.FlowQueue{q},
		})
	}
	return batches
}

// Run processes the given flow queues in order. Queues sharing a camera
// and frame range advance together as one batch. Structural failures
// (unreadable seed frame, store write errors) abort the run; per-point
// flow loss is absorbed into the data.
func (t *Tracker) Run(queues []trackdb.FlowQueue) error {
	for _, b := range batchQueues(queues) {
		if err := t.runBatch(b); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) runBatch(b batch) error {
	total := t.source.FrameCount()
	if b.startFrame >= total {
		for _, q := range b.queues {
			log.Printf("skipping %s: start frame %d >= total frame count %d", q, q.StartFrame, total)
		}
		return nil
	}

	end := b.endFrame
	if end > total {
		log.Printf("clamping batch cam=%d frames=[%d,%d) to %d total frames", b.cameraID, b.startFrame, b.endFrame, total)
		end = total
	}

	prev, err := t.source.Gray(b.startFrame)
	if err != nil {
		return fmt.Errorf("read seed frame %d: %w", b.startFrame, err)
	}

	n := len(b.queues)
	points := make([]Point, n)
	lost := make([]bool, n)
	obs := make([][]trackdb.Obs, n)
	for i, q := range b.queues {
		points[i] = Point{X: q.SeedX, Y: q.SeedY}
		obs[i] = make([]trackdb.Obs, b.endFrame-b.startFrame)
		obs[i][0] = trackdb.Obs{X: q.SeedX, Y: q.SeedY, Valid: true}
	}

	for frame := b.startFrame + 1; frame < end; frame++ {
		next, err := t.source.Gray(frame)
		if err != nil {
			// Partial results up to the last readable frame are still
			// saved; the remainder of the range stays unknown.
			log.Printf("batch cam=%d: frame %d unreadable, ending early: %v", b.cameraID, frame, err)
			break
		}

		// Advance every still-tracked point in one flow call.
		var active []int
		var pts []Point
		for i := range b.queues {
			if !lost[i] {
				active = append(active, i)
				pts = append(pts, points[i])
			}
		}

		moved, ok, err := trackPoints(prev, next, pts, t.cfg)
		if err != nil {
			return fmt.Errorf("flow cam=%d frame %d: %w", b.cameraID, frame, err)
		}

		remaining := 0
		for k, i := range active {
			if !ok[k] {
				// Once lost, a point stays unknown for the rest of
				// this job; re-acquisition needs a fresh seed.
				lost[i] = true
				log.Printf("flow lost %s at frame %d", b.queues[i], frame)
				continue
			}
			points[i] = moved[k]
			obs[i][frame-b.startFrame] = trackdb.Obs{X: moved[k].X, Y: moved[k].Y, Valid: true}
			remaining++
		}

		if remaining == 0 {
			// Total occlusion: every point in the batch vanished.
			// Informational, not an error.
			log.Printf("batch cam=%d frames=[%d,%d): all %d points lost at frame %d, ending early",
				b.cameraID, b.startFrame, b.endFrame, n, frame)
			break
		}

		prev = next
	}

	for i, q := range b.queues {
		if err := t.store.SaveFlowTrajectory(q, obs[i]); err != nil {
			return fmt.Errorf("persist %s: %w", q, err)
		}
	}
	return nil
}
