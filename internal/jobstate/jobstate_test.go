package jobstate

import (
	"log/slog"
	"testing"
	"time"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/store"
)

func newTestJobStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, slog.Default())
}

func testSpec() Spec {
	return Spec{
		OwnerID:       "user-1",
		Subject:       "Physics",
		Topics:        []string{"Mechanics"},
		QuestionCount: 10,
		Difficulty:    model.DifficultyMedium,
		Language:      "en",
		Stage:         "Queued",
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestJobStore(t)
	job, err := s.Create(testSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.ID == "" || job.Status != model.JobPending || job.Progress != 0 {
		t.Errorf("created job = %+v", job)
	}

	got, err := s.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Subject != "Physics" || got.Stage != "Queued" {
		t.Errorf("fetched job = %+v", got)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	s := newTestJobStore(t)
	job, err := s.Create(testSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updates, unsubscribe := s.Subscribe(job.ID)
	defer unsubscribe()

	if _, err := s.Advance(job.ID, model.JobSearching, "Searching", 10); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := s.Complete(job.ID, "exam-1", "Done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	recv := func() model.GenerationJob {
		t.Helper()
		select {
		case j := <-updates:
			return j
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for job update")
			return model.GenerationJob{}
		}
	}

	first := recv()
	if first.Status != model.JobSearching || first.Progress != 10 {
		t.Errorf("first update = %+v", first)
	}
	second := recv()
	if second.Status != model.JobCompleted || second.Progress != 100 {
		t.Errorf("second update = %+v", second)
	}
	if second.ExamID == nil || *second.ExamID != "exam-1" {
		t.Errorf("exam_id = %v", second.ExamID)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := newTestJobStore(t)
	job, err := s.Create(testSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updates, unsubscribe := s.Subscribe(job.ID)
	unsubscribe()
	// Unsubscribing twice is harmless.
	unsubscribe()

	if _, ok := <-updates; ok {
		t.Error("channel should be closed after unsubscribe")
	}

	// A write after unsubscribe must not panic on the closed channel.
	if _, err := s.Advance(job.ID, model.JobSearching, "Searching", 10); err != nil {
		t.Fatalf("Advance: %v", err)
	}
}

func TestSubscriberBufferOverflowDropsUpdates(t *testing.T) {
	s := newTestJobStore(t)
	job, err := s.Create(testSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, unsubscribe := s.Subscribe(job.ID)
	defer unsubscribe()

	// Nobody drains the channel; writes past the buffer must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 40; i++ {
			if _, err := s.Advance(job.ID, model.JobSearching, "Searching", 10); err != nil {
				t.Errorf("Advance: %v", err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writes blocked on a full subscriber buffer")
	}
}

func TestFailNotifiesAndIsSticky(t *testing.T) {
	s := newTestJobStore(t)
	job, err := s.Create(testSpec())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updates, unsubscribe := s.Subscribe(job.ID)
	defer unsubscribe()

	if _, err := s.Fail(job.ID, "no content"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	select {
	case j := <-updates:
		if j.Status != model.JobFailed || j.ErrorMessage == nil || *j.ErrorMessage != "no content" {
			t.Errorf("update = %+v", j)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure update")
	}

	if _, err := s.Complete(job.ID, "exam-1", "Done"); !apperr.Is(err, apperr.KindConsistency) {
		t.Errorf("expected consistency error after terminal, got %v", err)
	}
}

func TestStale(t *testing.T) {
	s := newTestJobStore(t)
	if _, err := s.Create(testSpec()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	jobs, err := s.Stale(time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("fresh job reported stale: %+v", jobs)
	}

	jobs, err = s.Stale(time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected 1 stale job, got %d", len(jobs))
	}
}
