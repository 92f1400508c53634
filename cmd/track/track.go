package main

import (
	"flag"
	"log"

	"github.com/softarm-vision/posture.report/internal/config"
	"github.com/softarm-vision/posture.report/internal/flow"
	"github.com/softarm-vision/posture.report/internal/trackdb"
	"github.com/softarm-vision/posture.report/internal/video"
)

var (
	dbFile     = flag.String("db", "", "Path to the run's track store (.db)")
	frameDir   = flag.String("frames", "", "Camera input: a directory of extracted frames or a video file")
	cameraID   = flag.Int("camera", 0, "Camera id the frame directory belongs to")
	startFrame = flag.Int("start-frame", -1, "Only run queues seeded at this frame (default: all pending)")
	tuningFile = flag.String("tuning", "", "Optical flow tuning config (default: embedded search for "+config.DefaultConfigPath+")")
)

func main() {
	flag.Parse()

	if *dbFile == "" {
		log.Fatal("track store path is required (-db)")
	}
	if *frameDir == "" {
		log.Fatal("camera input is required (-frames)")
	}

	var tuning *config.TuningConfig
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	} else {
		tuning = config.MustLoadDefaultConfig()
	}
	if err := tuning.Validate(); err != nil {
		log.Fatalf("Invalid tuning config: %v", err)
	}

	store, err := trackdb.Load(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open track store: %v", err)
	}
	defer store.Close()

	source, err := video.Open(*frameDir)
	if err != nil {
		log.Fatalf("Failed to open camera input: %v", err)
	}
	defer source.Close()

	var queues []trackdb.FlowQueue
	if *startFrame >= 0 {
		all, err := store.Queues(*cameraID, *startFrame)
		if err != nil {
			log.Fatalf("Failed to load flow queues: %v", err)
		}
		for _, q := range all {
			if !q.Processed {
				queues = append(queues, q)
			}
		}
	} else {
		queues, err = store.PendingQueues(*cameraID)
		if err != nil {
			log.Fatalf("Failed to load flow queues: %v", err)
		}
	}
	if len(queues) == 0 {
		log.Printf("No pending flow queues for camera %d", *cameraID)
		return
	}

	log.Printf("Tracking %d queues for camera %d over %d frames (run %s)",
		len(queues), *cameraID, source.FrameCount(), store.RunID)

	tracker := flow.NewTracker(flow.ConfigFromTuning(tuning), source, store)
	if err := tracker.Run(queues); err != nil {
		log.Fatalf("Tracking failed: %v", err)
	}

	reportLostPoints(store, queues, flow.NewReappearance(tuning.GetPredictionWindow()), source.FrameCount())

	log.Printf("Tracking complete: %d queues processed", len(queues))
}

// reportLostPoints logs, for every job that lost its point before the end
// of its range, the last known position and a model-predicted one. The
// operator confirms or corrects the prediction in the labeling UI and
// seeds a new queue from it.
func reportLostPoints(store *trackdb.Store, queues []trackdb.FlowQueue, predictor *flow.Reappearance, totalFrames int) {
	for _, q := range queues {
		end := q.EndFrame
		if end > totalFrames {
			end = totalFrames
		}
		if end <= q.StartFrame {
			continue
		}

		track, err := store.PixelTrack(q.CameraID, q.RingIndex, q.Tag)
		if err != nil {
			log.Fatalf("Failed to read pixel track for %s: %v", q, err)
		}
		if track[end-1].Valid {
			continue
		}

		xs := make([]float64, len(track))
		ys := make([]float64, len(track))
		valid := make([]bool, len(track))
		for i, o := range track {
			xs[i], ys[i], valid[i] = o.X, o.Y, o.Valid
		}

		s, ok := predictor.Predict(xs, ys, valid, end-1)
		if !ok {
			continue
		}
		log.Printf("%s lost after frame %d: last (%.1f, %.1f), predicted (%.1f, %.1f) at frame %d for re-seeding",
			q, s.LastFrame, s.Last.X, s.Last.Y, s.Predicted.X, s.Predicted.Y, end-1)
	}
}
