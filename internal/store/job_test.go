package store

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/model"
)

func insertTestJob(t *testing.T, s *Store) model.GenerationJob {
	t.Helper()
	now := time.Now().UTC()
	job := model.GenerationJob{
		ID:            uuid.NewString(),
		OwnerID:       "user-1",
		Subject:       "Physics",
		Topics:        []string{"Mechanics"},
		QuestionCount: 10,
		Difficulty:    model.DifficultyMedium,
		Language:      "en",
		Status:        model.JobPending,
		Stage:         "Queued",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.InsertJob(job); err != nil {
		t.Fatalf("insertTestJob: %v", err)
	}
	return job
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	job := insertTestJob(t, s)

	got, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != model.JobPending || got.Progress != 0 {
		t.Errorf("fresh job = %+v", got)
	}
	if len(got.Topics) != 1 || got.Topics[0] != "Mechanics" {
		t.Errorf("topics = %v", got.Topics)
	}

	got, err = s.AdvanceJob(job.ID, model.JobSearching, "Searching", 10)
	if err != nil {
		t.Fatalf("AdvanceJob: %v", err)
	}
	if got.Status != model.JobSearching || got.Progress != 10 {
		t.Errorf("after advance: status=%q progress=%d", got.Status, got.Progress)
	}

	got, err = s.CompleteJob(job.ID, "exam-1", "Done")
	if err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if got.Status != model.JobCompleted || got.Progress != 100 {
		t.Errorf("after complete: status=%q progress=%d", got.Status, got.Progress)
	}
	if got.ExamID == nil || *got.ExamID != "exam-1" {
		t.Errorf("exam_id = %v", got.ExamID)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestAdvanceJobProgressMonotonic(t *testing.T) {
	s := newTestStore(t)
	job := insertTestJob(t, s)

	if _, err := s.AdvanceJob(job.ID, model.JobGenerating, "Generating", 40); err != nil {
		t.Fatalf("AdvanceJob: %v", err)
	}
	// A lower progress value never moves the bar backward.
	got, err := s.AdvanceJob(job.ID, model.JobSearching, "Searching", 10)
	if err != nil {
		t.Fatalf("AdvanceJob: %v", err)
	}
	if got.Progress != 40 {
		t.Errorf("progress = %d, want 40", got.Progress)
	}
	if got.Status != model.JobSearching {
		t.Errorf("status = %q, want searching", got.Status)
	}
}

func TestAdvanceJobRejectsTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	job := insertTestJob(t, s)

	_, err := s.AdvanceJob(job.ID, model.JobCompleted, "Done", 100)
	if !apperr.Is(err, apperr.KindConsistency) {
		t.Errorf("expected consistency error, got %v", err)
	}
}

func TestTerminalJobIsImmutable(t *testing.T) {
	s := newTestStore(t)

	t.Run("failed stays failed", func(t *testing.T) {
		job := insertTestJob(t, s)
		if _, err := s.FailJob(job.ID, "LLM exploded"); err != nil {
			t.Fatalf("FailJob: %v", err)
		}

		_, err := s.CompleteJob(job.ID, "exam-1", "Done")
		if !apperr.Is(err, apperr.KindConsistency) {
			t.Fatalf("expected consistency error, got %v", err)
		}
		if !strings.Contains(err.Error(), "already failed") {
			t.Errorf("error = %v", err)
		}

		got, err := s.GetJob(job.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.Status != model.JobFailed || got.ExamID != nil {
			t.Errorf("job mutated after terminal: %+v", got)
		}
		if got.ErrorMessage == nil || *got.ErrorMessage != "LLM exploded" {
			t.Errorf("error_message = %v", got.ErrorMessage)
		}
	})

	t.Run("completed stays completed", func(t *testing.T) {
		job := insertTestJob(t, s)
		if _, err := s.CompleteJob(job.ID, "exam-1", "Done"); err != nil {
			t.Fatalf("CompleteJob: %v", err)
		}

		if _, err := s.FailJob(job.ID, "too late"); !apperr.Is(err, apperr.KindConsistency) {
			t.Fatalf("expected consistency error, got %v", err)
		}
		if _, err := s.AdvanceJob(job.ID, model.JobGenerating, "Generating", 40); !apperr.Is(err, apperr.KindConsistency) {
			t.Fatalf("expected consistency error, got %v", err)
		}
	})
}

func TestJobWriteNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AdvanceJob("nope", model.JobSearching, "Searching", 10); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("AdvanceJob: expected not found, got %v", err)
	}
	if _, err := s.FailJob("nope", "msg"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("FailJob: expected not found, got %v", err)
	}
	if _, err := s.GetJob("nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("GetJob: expected not found, got %v", err)
	}
}

func TestStaleJobs(t *testing.T) {
	s := newTestStore(t)
	stale := insertTestJob(t, s)
	fresh := insertTestJob(t, s)
	done := insertTestJob(t, s)

	// Terminal jobs are never stale, no matter how old.
	if _, err := s.CompleteJob(done.ID, "exam-1", "Done"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	old := time.Now().UTC().Add(-time.Hour)
	for _, id := range []string{stale.ID, done.ID} {
		if _, err := s.db.Exec(`UPDATE generation_jobs SET updated_at = ? WHERE id = ?`, old, id); err != nil {
			t.Fatalf("backdate: %v", err)
		}
	}

	jobs, err := s.StaleJobs(time.Now().UTC().Add(-30 * time.Minute))
	if err != nil {
		t.Fatalf("StaleJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != stale.ID {
		t.Errorf("stale jobs = %+v", jobs)
	}
	_ = fresh
}
