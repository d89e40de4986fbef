package store

import (
	"testing"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/model"
)

func strptr(s string) *string { return &s }

func TestCreateAttemptNumbering(t *testing.T) {
	s := newTestStore(t)
	exam := createTestExam(t, s, 3)

	a1, err := s.CreateAttempt(exam.ID, "user-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	a2, err := s.CreateAttempt(exam.ID, "user-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	other, err := s.CreateAttempt(exam.ID, "user-2")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	if a1.Number != 1 || a2.Number != 2 {
		t.Errorf("numbers = %d, %d; want 1, 2", a1.Number, a2.Number)
	}
	// Numbering is per user, not per exam.
	if other.Number != 1 {
		t.Errorf("other user's first attempt number = %d, want 1", other.Number)
	}
	if a1.Status != model.AttemptInProgress {
		t.Errorf("status = %q, want in_progress", a1.Status)
	}
}

func TestSubmitAttempt(t *testing.T) {
	s := newTestStore(t)
	exam := createTestExam(t, s, 3)
	a, err := s.CreateAttempt(exam.ID, "user-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	if err := s.SubmitAttempt(a.ID, 420); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	got, err := s.GetAttempt(a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.Status != model.AttemptSubmitted || got.TimeSpentSec != 420 {
		t.Errorf("attempt = %+v", got)
	}
	if got.SubmittedAt == nil {
		t.Error("submitted_at not set")
	}

	// Double submit is rejected.
	if err := s.SubmitAttempt(a.ID, 1); !apperr.Is(err, apperr.KindConsistency) {
		t.Errorf("expected consistency error, got %v", err)
	}
	if err := s.SubmitAttempt("nope", 1); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpsertAnswerReplacesAndClearsGrade(t *testing.T) {
	s := newTestStore(t)
	exam := createTestExam(t, s, 1)
	questions, err := s.GetQuestionsForExam(exam.ID)
	if err != nil {
		t.Fatalf("GetQuestionsForExam: %v", err)
	}
	q := questions[0]
	a, err := s.CreateAttempt(exam.ID, "user-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	if err := s.UpsertAnswer(model.SubmittedAnswer{AttemptID: a.ID, QuestionID: q.ID, Answer: strptr("a")}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}
	if err := s.UpsertGrade(a.ID, q.ID, true, 1, nil); err != nil {
		t.Fatalf("UpsertGrade: %v", err)
	}

	// Re-answering resets the grade.
	if err := s.UpsertAnswer(model.SubmittedAnswer{AttemptID: a.ID, QuestionID: q.ID, Answer: strptr("b")}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}

	answers, err := s.GetAnswersForAttempt(a.ID)
	if err != nil {
		t.Fatalf("GetAnswersForAttempt: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer row, got %d", len(answers))
	}
	ans := answers[q.ID]
	if ans.Answer == nil || *ans.Answer != "b" {
		t.Errorf("answer = %v, want b", ans.Answer)
	}
	if ans.IsCorrect != nil || ans.PointsEarned != 0 || ans.Feedback != nil {
		t.Errorf("grade not cleared: %+v", ans)
	}
}

func TestUpsertGradeOverwrites(t *testing.T) {
	s := newTestStore(t)
	exam := createTestExam(t, s, 1)
	questions, _ := s.GetQuestionsForExam(exam.ID)
	q := questions[0]
	a, err := s.CreateAttempt(exam.ID, "user-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	if err := s.UpsertGrade(a.ID, q.ID, false, 0, strptr("wrong")); err != nil {
		t.Fatalf("UpsertGrade: %v", err)
	}
	if err := s.UpsertGrade(a.ID, q.ID, true, 0.8, strptr("mostly right")); err != nil {
		t.Fatalf("UpsertGrade: %v", err)
	}

	answers, err := s.GetAnswersForAttempt(a.ID)
	if err != nil {
		t.Fatalf("GetAnswersForAttempt: %v", err)
	}
	ans := answers[q.ID]
	if ans.IsCorrect == nil || !*ans.IsCorrect || ans.PointsEarned != 0.8 {
		t.Errorf("grade = %+v", ans)
	}
	if ans.Feedback == nil || *ans.Feedback != "mostly right" {
		t.Errorf("feedback = %v", ans.Feedback)
	}
}

func TestFinalizeAttemptScore(t *testing.T) {
	s := newTestStore(t)
	exam := createTestExam(t, s, 3)
	a, err := s.CreateAttempt(exam.ID, "user-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	if err := s.FinalizeAttemptScore(a.ID, 66.67, 2, 1, 0); err != nil {
		t.Fatalf("FinalizeAttemptScore: %v", err)
	}
	// Rescoring overwrites the previous aggregate.
	if err := s.FinalizeAttemptScore(a.ID, 100, 3, 0, 0); err != nil {
		t.Fatalf("FinalizeAttemptScore: %v", err)
	}

	got, err := s.GetAttempt(a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.Status != model.AttemptScored {
		t.Errorf("status = %q, want scored", got.Status)
	}
	if got.Score == nil || *got.Score != 100 || got.CorrectCount != 3 || got.WrongCount != 0 {
		t.Errorf("aggregate = %+v", got)
	}
	if got.ScoredAt == nil {
		t.Error("scored_at not set")
	}

	if err := s.FinalizeAttemptScore("nope", 0, 0, 0, 0); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
