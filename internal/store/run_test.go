package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string, started time.Time) (*Run, []Hit) {
	run := &Run{
		ID:             id,
		StartedAt:      started,
		EndedAt:        started.Add(45 * time.Second),
		TargetCount:    3,
		TargetRadius:   50,
		MeanAccuracy:   12.5,
		MeanReactionMs: 1500,
	}
	hits := []Hit{
		{TargetIndex: 0, TargetX: 100, TargetY: 100, GazeX: 110, GazeY: 100, Accuracy: 10, ReactionMs: 1200, HitAt: started.Add(1200 * time.Millisecond)},
		{TargetIndex: 1, TargetX: 800, TargetY: 400, GazeX: 800, GazeY: 420, Accuracy: 20, ReactionMs: 1800, HitAt: started.Add(3 * time.Second)},
		{TargetIndex: 2, TargetX: 1500, TargetY: 900, GazeX: 1507.5, GazeY: 900, Accuracy: 7.5, ReactionMs: 1500, HitAt: started.Add(4500 * time.Millisecond)},
	}
	return run, hits
}

var testTime = time.Date(2025, 4, 2, 15, 0, 0, 0, time.UTC)

func TestRunRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2025, 4, 2, 15, 0, 0, 0, time.UTC)
	run, hits := sampleRun("run-1", started)

	if err := s.Runs().Create(run, hits); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Runs().GetByID("run-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.TargetCount != 3 || got.TargetRadius != 50 || got.MeanAccuracy != 12.5 || got.MeanReactionMs != 1500 {
		t.Errorf("GetByID() = %+v", got)
	}
	if !got.StartedAt.Equal(started) || !got.EndedAt.Equal(run.EndedAt) {
		t.Errorf("times = %v..%v, want %v..%v", got.StartedAt, got.EndedAt, started, run.EndedAt)
	}

	gotHits, err := s.Runs().Hits("run-1")
	if err != nil {
		t.Fatalf("Hits() error = %v", err)
	}
	if len(gotHits) != 3 {
		t.Fatalf("len(Hits()) = %d, want 3", len(gotHits))
	}
	for i, h := range gotHits {
		if h.RunID != "run-1" || h.TargetIndex != i {
			t.Errorf("hit %d = %+v", i, h)
		}
		if h.Accuracy != hits[i].Accuracy || h.GazeX != hits[i].GazeX {
			t.Errorf("hit %d accuracy/gaze = %v/%v, want %v/%v", i, h.Accuracy, h.GazeX, hits[i].Accuracy, hits[i].GazeX)
		}
	}
}

func TestRunRepository_CreateRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	run, hits := sampleRun("dup", time.Now().UTC())

	if err := s.Runs().Create(run, hits); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if err := s.Runs().Create(run, hits); err == nil {
		t.Fatal("second Create() with the same id should fail")
	}

	gotHits, err := s.Runs().Hits("dup")
	if err != nil {
		t.Fatalf("Hits() error = %v", err)
	}
	if len(gotHits) != 3 {
		t.Errorf("failed insert leaked hits: got %d, want 3", len(gotHits))
	}

	if err := s.Runs().Create(&Run{}, nil); err == nil {
		t.Error("Create() without id should fail")
	}
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		run, hits := sampleRun(id, base.Add(time.Duration(i)*time.Hour))
		if err := s.Runs().Create(run, hits); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	runs, err := s.Runs().List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "c" || runs[2].ID != "a" {
		t.Errorf("List(0) order = %v", runIDs(runs))
	}

	runs, err = s.Runs().List(2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("List(2) = %v", runIDs(runs))
	}
}

func TestRunRepository_Delete(t *testing.T) {
	s := newTestStore(t)
	run, hits := sampleRun("gone", time.Now().UTC())
	if err := s.Runs().Create(run, hits); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.Runs().Delete("gone"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Runs().GetByID("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}

	gotHits, err := s.Runs().Hits("gone")
	if err != nil {
		t.Fatalf("Hits() error = %v", err)
	}
	if len(gotHits) != 0 {
		t.Errorf("hits not cascaded: %d left", len(gotHits))
	}

	if err := s.Runs().Delete("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
