package trackdb

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/softarm-vision/posture.report/internal/marker"
)

const (
	testFrames = 10
	testRings  = 3
)

func testMarkers() *marker.MarkerPositions {
	ring := marker.Ring{
		Offsets: map[string]marker.Vec3{
			"N": {0, 0.01, 0},
			"E": {0.01, 0, 0},
			"S": {0, -0.01, 0},
			"W": {-0.01, 0, 0},
		},
		Origin: marker.Vec3{0, 0, 0},
		Basis: [3]marker.Vec3{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
	}
	return &marker.MarkerPositions{
		TagNames: []string{"N", "E", "S", "W"},
		Rings:    []marker.Ring{ring, ring, ring},
	}
}

// setupStore creates a fresh store for one test and closes it on cleanup.
func setupStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.db")
	s, err := Initialize(path, "test-run", testFrames, testMarkers())
	if err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitializeRecordsRunDimensions(t *testing.T) {
	s := setupStore(t)
	if s.RunID != "test-run" || s.FrameCount != testFrames || s.TagCount != 4 || s.RingCount != testRings {
		t.Fatalf("store dims = %s/%d/%d/%d", s.RunID, s.FrameCount, s.TagCount, s.RingCount)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	s := setupStore(t)
	again, err := Initialize(s.Path(), "test-run", testFrames, testMarkers())
	if err != nil {
		t.Fatalf("re-Initialize() = %v", err)
	}
	again.Close()
}

func TestInitializeRunMismatch(t *testing.T) {
	s := setupStore(t)
	_, err := Initialize(s.Path(), "test-run", testFrames+5, testMarkers())
	if !errors.Is(err, ErrRunMismatch) {
		t.Fatalf("Initialize() with changed frame count = %v, want ErrRunMismatch", err)
	}
}

func TestInitializeRejectsNonPositiveFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	if _, err := Initialize(path, "test-run", 0, testMarkers()); err == nil {
		t.Fatal("Initialize() accepted zero frame count")
	}
}

func TestLoadMissingStore(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.db"))
	if !errors.Is(err, ErrStoreMissing) {
		t.Fatalf("Load() = %v, want ErrStoreMissing", err)
	}
}

func TestLoadRecoversMetadata(t *testing.T) {
	s := setupStore(t)
	path := s.Path()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	defer loaded.Close()

	if loaded.RunID != "test-run" || loaded.FrameCount != testFrames ||
		loaded.TagCount != 4 || loaded.RingCount != testRings {
		t.Fatalf("loaded dims = %s/%d/%d/%d", loaded.RunID, loaded.FrameCount, loaded.TagCount, loaded.RingCount)
	}
}

func TestAppendQueueAssignsID(t *testing.T) {
	s := setupStore(t)
	q := &FlowQueue{CameraID: 1, RingIndex: 0, Tag: "N", SeedX: 10, SeedY: 20, StartFrame: 0, EndFrame: 5}
	if err := s.AppendQueue(q); err != nil {
		t.Fatalf("AppendQueue() = %v", err)
	}
	if q.QueueID == "" {
		t.Fatal("AppendQueue() left QueueID empty")
	}
}

func TestAppendQueueRejectsBadJobs(t *testing.T) {
	s := setupStore(t)
	if err := s.AppendQueue(&FlowQueue{CameraID: 1, StartFrame: 0, EndFrame: 5}); err == nil {
		t.Error("AppendQueue() accepted empty tag")
	}
	if err := s.AppendQueue(&FlowQueue{Tag: "N", StartFrame: 5, EndFrame: 2}); err == nil {
		t.Error("AppendQueue() accepted end before start")
	}
}

func TestQueuesFilters(t *testing.T) {
	s := setupStore(t)
	jobs := []FlowQueue{
		{CameraID: 0, RingIndex: 0, Tag: "N", StartFrame: 0, EndFrame: 5},
		{CameraID: 0, RingIndex: 0, Tag: "E", StartFrame: 3, EndFrame: 8},
		{CameraID: 1, RingIndex: 1, Tag: "N", StartFrame: 0, EndFrame: 5},
	}
	for i := range jobs {
		if err := s.AppendQueue(&jobs[i]); err != nil {
			t.Fatalf("AppendQueue() = %v", err)
		}
	}

	cam0, err := s.Queues(0, -1)
	if err != nil {
		t.Fatalf("Queues(0, -1) = %v", err)
	}
	if len(cam0) != 2 {
		t.Fatalf("Queues(0, -1) returned %d jobs, want 2", len(cam0))
	}

	seeded, err := s.Queues(0, 3)
	if err != nil {
		t.Fatalf("Queues(0, 3) = %v", err)
	}
	if len(seeded) != 1 {
		t.Fatalf("Queues(0, 3) returned %d jobs, want 1", len(seeded))
	}
	if diff := cmp.Diff(jobs[1], seeded[0]); diff != "" {
		t.Errorf("job round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestQueuesPreserveInsertionOrder(t *testing.T) {
	s := setupStore(t)
	const jobs = 30

	ids := make([]string, jobs)
	for i := 0; i < jobs; i++ {
		q := FlowQueue{CameraID: 0, RingIndex: 0, Tag: "N", StartFrame: i, EndFrame: i + 1}
		if err := s.AppendQueue(&q); err != nil {
			t.Fatalf("AppendQueue() = %v", err)
		}
		ids[i] = q.QueueID
	}

	got, err := s.Queues(0, -1)
	if err != nil {
		t.Fatalf("Queues() = %v", err)
	}
	if len(got) != jobs {
		t.Fatalf("Queues() returned %d jobs, want %d", len(got), jobs)
	}
	// All appends land within the same wall-clock second, so ordering
	// must not depend on the created timestamp or the random queue ids.
	for i := range got {
		if got[i].QueueID != ids[i] {
			t.Fatalf("queue %d = %s, want %s (insertion order not preserved)", i, got[i].QueueID, ids[i])
		}
	}
}

func TestPendingQueuesExcludesProcessed(t *testing.T) {
	s := setupStore(t)
	done := FlowQueue{CameraID: 0, Tag: "N", StartFrame: 0, EndFrame: 5, Processed: true}
	todo := FlowQueue{CameraID: 0, Tag: "E", StartFrame: 0, EndFrame: 5}
	if err := s.AppendQueue(&done); err != nil {
		t.Fatalf("AppendQueue() = %v", err)
	}
	if err := s.AppendQueue(&todo); err != nil {
		t.Fatalf("AppendQueue() = %v", err)
	}

	pending, err := s.PendingQueues(0)
	if err != nil {
		t.Fatalf("PendingQueues() = %v", err)
	}
	if len(pending) != 1 || pending[0].Tag != "E" {
		t.Fatalf("PendingQueues() = %v, want only the unprocessed E job", pending)
	}
}

func TestSaveFlowTrajectoryLengthMismatch(t *testing.T) {
	s := setupStore(t)
	q := FlowQueue{QueueID: "q1", CameraID: 0, Tag: "N", StartFrame: 0, EndFrame: 5}
	if err := s.SaveFlowTrajectory(q, make([]Obs, 3)); err == nil {
		t.Fatal("SaveFlowTrajectory() accepted wrong sample count")
	}
}

func TestSaveFlowTrajectoryRoundTrip(t *testing.T) {
	s := setupStore(t)
	q := FlowQueue{CameraID: 0, RingIndex: 1, Tag: "N", SeedX: 5, SeedY: 5, StartFrame: 2, EndFrame: 8}
	if err := s.AppendQueue(&q); err != nil {
		t.Fatalf("AppendQueue() = %v", err)
	}

	obs := make([]Obs, 6)
	for i := range obs {
		obs[i] = Obs{X: 5 + float64(i), Y: 5, Valid: true}
	}
	obs[4].Valid = false // point briefly unobserved
	if err := s.SaveFlowTrajectory(q, obs); err != nil {
		t.Fatalf("SaveFlowTrajectory() = %v", err)
	}

	track, err := s.PixelTrack(0, 1, "N")
	if err != nil {
		t.Fatalf("PixelTrack() = %v", err)
	}
	if len(track) != testFrames {
		t.Fatalf("PixelTrack() length = %d, want %d", len(track), testFrames)
	}
	if track[0].Valid || track[1].Valid {
		t.Error("frames before the job range should be unknown")
	}
	if !track[2].Valid || track[2].X != 5 {
		t.Errorf("seed sample = %+v, want valid at x=5", track[2])
	}
	if track[6].Valid {
		t.Error("invalid sample leaked through as known")
	}
	if !track[7].Valid || track[7].X != 10 {
		t.Errorf("last sample = %+v, want valid at x=10", track[7])
	}
	if track[8].Valid {
		t.Error("frames past the job range should be unknown")
	}

	queues, err := s.Queues(0, -1)
	if err != nil {
		t.Fatalf("Queues() = %v", err)
	}
	if len(queues) != 1 || !queues[0].Processed {
		t.Fatalf("queue not marked processed: %v", queues)
	}
}

func TestSaveFlowTrajectoryClearsStaleSamples(t *testing.T) {
	s := setupStore(t)
	q := FlowQueue{QueueID: "retrack", CameraID: 0, RingIndex: 0, Tag: "N", StartFrame: 2, EndFrame: 8}

	full := make([]Obs, 6)
	for i := range full {
		full[i] = Obs{X: float64(i), Y: 0, Valid: true}
	}
	if err := s.SaveFlowTrajectory(q, full); err != nil {
		t.Fatalf("first SaveFlowTrajectory() = %v", err)
	}

	// Second pass loses the point after two frames. Samples from the
	// first pass must not survive past the loss.
	partial := make([]Obs, 6)
	partial[0] = Obs{X: 0, Y: 1, Valid: true}
	partial[1] = Obs{X: 1, Y: 1, Valid: true}
	if err := s.SaveFlowTrajectory(q, partial); err != nil {
		t.Fatalf("second SaveFlowTrajectory() = %v", err)
	}

	track, err := s.PixelTrack(0, 0, "N")
	if err != nil {
		t.Fatalf("PixelTrack() = %v", err)
	}
	if !track[2].Valid || !track[3].Valid {
		t.Error("retracked samples missing")
	}
	for frame := 4; frame < 8; frame++ {
		if track[frame].Valid {
			t.Errorf("stale sample survived at frame %d", frame)
		}
	}
}

func TestWorldTrackRoundTrip(t *testing.T) {
	s := setupStore(t)

	if track, err := s.WorldTrack(0, "N"); err != nil || track != nil {
		t.Fatalf("WorldTrack() before write = %v, %v, want nil, nil", track, err)
	}

	obs := make([]WorldObs, testFrames)
	for i := range obs {
		obs[i] = WorldObs{X: float64(i), Y: 0.5, Z: -0.5, Valid: true}
	}
	obs[3].Valid = false
	if err := s.PutWorldTrack(0, "N", obs); err != nil {
		t.Fatalf("PutWorldTrack() = %v", err)
	}

	track, err := s.WorldTrack(0, "N")
	if err != nil {
		t.Fatalf("WorldTrack() = %v", err)
	}
	if len(track) != testFrames {
		t.Fatalf("WorldTrack() length = %d, want %d", len(track), testFrames)
	}
	if track[3].Valid {
		t.Error("missing frame came back as known")
	}
	if !track[5].Valid || track[5].X != 5 {
		t.Errorf("sample at frame 5 = %+v", track[5])
	}

	// Replace semantics: a rewrite drops every prior sample.
	if err := s.PutWorldTrack(0, "N", make([]WorldObs, testFrames)); err != nil {
		t.Fatalf("PutWorldTrack() rewrite = %v", err)
	}
	if track, err := s.WorldTrack(0, "N"); err != nil || track != nil {
		t.Fatalf("WorldTrack() after empty rewrite = %v, %v, want nil, nil", track, err)
	}
}

func TestTimestampsRoundTrip(t *testing.T) {
	s := setupStore(t)
	ts := make([]float64, testFrames)
	for i := range ts {
		ts[i] = float64(i) / 60.0
	}
	if err := s.PutTimestamps(ts); err != nil {
		t.Fatalf("PutTimestamps() = %v", err)
	}

	got, err := s.Timestamps()
	if err != nil {
		t.Fatalf("Timestamps() = %v", err)
	}
	if len(got) != testFrames || got[6] != 0.1 {
		t.Fatalf("Timestamps() = %v", got)
	}
}

func TestLoadPostureAbsent(t *testing.T) {
	s := setupStore(t)
	_, _, ok, err := s.LoadPosture()
	if err != nil {
		t.Fatalf("LoadPosture() = %v", err)
	}
	if ok {
		t.Fatal("LoadPosture() reported arrays present on a fresh store")
	}
}

func TestSavePostureLengthChecks(t *testing.T) {
	s := setupStore(t)
	if err := s.SavePosture(make([]float64, 3), make([]float64, testFrames*9*testRings)); err == nil {
		t.Error("SavePosture() accepted short positions")
	}
	if err := s.SavePosture(make([]float64, testFrames*3*testRings), make([]float64, 3)); err == nil {
		t.Error("SavePosture() accepted short directors")
	}
}

func TestPostureRoundTripPreservesUnknowns(t *testing.T) {
	s := setupStore(t)
	T, N := s.FrameCount, s.RingCount

	positions := make([]float64, T*3*N)
	directors := make([]float64, T*9*N)
	for i := range positions {
		positions[i] = float64(i) * 0.001
	}
	for i := range directors {
		directors[i] = float64(i) * 0.002
	}
	// Ring 1 at frame 4 could not be reconstructed.
	for axis := 0; axis < 3; axis++ {
		positions[(4*3+axis)*N+1] = math.NaN()
	}
	for k := 0; k < 9; k++ {
		directors[(4*9+k)*N+1] = math.NaN()
	}

	if err := s.SavePosture(positions, directors); err != nil {
		t.Fatalf("SavePosture() = %v", err)
	}

	gotPos, gotDir, ok, err := s.LoadPosture()
	if err != nil {
		t.Fatalf("LoadPosture() = %v", err)
	}
	if !ok {
		t.Fatal("LoadPosture() did not find saved arrays")
	}

	if gotPos[(2*3+1)*N+0] != positions[(2*3+1)*N+0] {
		t.Errorf("position sample changed in round trip")
	}
	if gotDir[(7*9+5)*N+2] != directors[(7*9+5)*N+2] {
		t.Errorf("director sample changed in round trip")
	}
	if !math.IsNaN(gotPos[(4*3+0)*N+1]) {
		t.Error("unknown position came back with a value")
	}
	if !math.IsNaN(gotDir[(4*9+8)*N+1]) {
		t.Error("unknown director came back with a value")
	}
}

func TestSavePostureReplacesBothArrays(t *testing.T) {
	s := setupStore(t)
	T, N := s.FrameCount, s.RingCount

	first := make([]float64, T*3*N)
	firstDir := make([]float64, T*9*N)
	for i := range first {
		first[i] = 1
	}
	if err := s.SavePosture(first, firstDir); err != nil {
		t.Fatalf("first SavePosture() = %v", err)
	}

	second := make([]float64, T*3*N)
	secondDir := make([]float64, T*9*N)
	for i := range secondDir {
		secondDir[i] = 2
	}
	if err := s.SavePosture(second, secondDir); err != nil {
		t.Fatalf("second SavePosture() = %v", err)
	}

	gotPos, gotDir, ok, err := s.LoadPosture()
	if err != nil || !ok {
		t.Fatalf("LoadPosture() = ok=%v, err=%v", ok, err)
	}
	if gotPos[0] != 0 || gotDir[0] != 2 {
		t.Fatalf("rewrite left stale values: pos[0]=%v dir[0]=%v", gotPos[0], gotDir[0])
	}
}
