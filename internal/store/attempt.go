package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/model"
)

// CreateAttempt opens a new attempt for a user on an exam. Attempt numbers
// are 1-based and increase per user per exam.
func (s *Store) CreateAttempt(examID, userID string) (model.Attempt, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return model.Attempt{}, apperr.Wrap(apperr.KindUpstream, "begin attempt transaction", err)
	}
	defer tx.Rollback()

	var number int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(number), 0) + 1 FROM attempts WHERE exam_id = ? AND user_id = ?`,
		examID, userID,
	).Scan(&number)
	if err != nil {
		return model.Attempt{}, apperr.Wrap(apperr.KindUpstream, "next attempt number", err)
	}

	a := model.Attempt{
		ID:        uuid.NewString(),
		ExamID:    examID,
		UserID:    userID,
		Number:    number,
		Status:    model.AttemptInProgress,
		StartedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(
		`INSERT INTO attempts (id, exam_id, user_id, number, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ExamID, a.UserID, a.Number, a.Status, a.StartedAt,
	)
	if err != nil {
		return model.Attempt{}, apperr.Wrap(apperr.KindUpstream, "insert attempt", err)
	}
	return a, tx.Commit()
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(id string) (model.Attempt, error) {
	var a model.Attempt
	err := s.db.QueryRow(
		`SELECT id, exam_id, user_id, number, status, score, correct_count, wrong_count,
		        skipped_count, time_spent_sec, started_at, submitted_at, scored_at
		 FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.ExamID, &a.UserID, &a.Number, &a.Status, &a.Score,
		&a.CorrectCount, &a.WrongCount, &a.SkippedCount, &a.TimeSpentSec,
		&a.StartedAt, &a.SubmittedAt, &a.ScoredAt)
	if err == sql.ErrNoRows {
		return a, apperr.New(apperr.KindNotFound, "attempt not found")
	}
	if err != nil {
		return a, apperr.Wrap(apperr.KindUpstream, "get attempt", err)
	}
	return a, nil
}

// SubmitAttempt marks an attempt submitted and records the time spent.
func (s *Store) SubmitAttempt(id string, timeSpentSec int) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE attempts SET status = 'submitted', time_spent_sec = ?, submitted_at = ?
		 WHERE id = ? AND status = 'in_progress'`,
		timeSpentSec, now, id,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "submit attempt", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetAttempt(id); err != nil {
			return err
		}
		return apperr.New(apperr.KindConsistency, "attempt is not in progress")
	}
	return nil
}

// UpsertAnswer records a user's answer for one question. Exactly one row
// exists per (attempt, question); resubmitting replaces the answer and
// clears any prior grade.
func (s *Store) UpsertAnswer(ans model.SubmittedAnswer) error {
	_, err := s.db.Exec(
		`INSERT INTO submitted_answers (id, attempt_id, question_id, answer)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(attempt_id, question_id) DO UPDATE SET
		   answer = excluded.answer, is_correct = NULL, points_earned = 0, feedback = NULL`,
		uuid.NewString(), ans.AttemptID, ans.QuestionID, ans.Answer,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "upsert answer", err)
	}
	return nil
}

// GetAnswersForAttempt returns all submitted answers for an attempt keyed
// by question ID.
func (s *Store) GetAnswersForAttempt(attemptID string) (map[string]model.SubmittedAnswer, error) {
	rows, err := s.db.Query(
		`SELECT id, attempt_id, question_id, answer, is_correct, points_earned, feedback
		 FROM submitted_answers WHERE attempt_id = ?`, attemptID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "query answers", err)
	}
	defer rows.Close()

	answers := make(map[string]model.SubmittedAnswer)
	for rows.Next() {
		var a model.SubmittedAnswer
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.Answer,
			&a.IsCorrect, &a.PointsEarned, &a.Feedback); err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "scan answer", err)
		}
		answers[a.QuestionID] = a
	}
	return answers, rows.Err()
}

// UpsertGrade records the grading result for one (attempt, question) pair.
// Rerunning scoring overwrites rather than double-counts.
func (s *Store) UpsertGrade(attemptID, questionID string, isCorrect bool, points float64, feedback *string) error {
	_, err := s.db.Exec(
		`INSERT INTO submitted_answers (id, attempt_id, question_id, is_correct, points_earned, feedback)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(attempt_id, question_id) DO UPDATE SET
		   is_correct = excluded.is_correct, points_earned = excluded.points_earned, feedback = excluded.feedback`,
		uuid.NewString(), attemptID, questionID, isCorrect, points, feedback,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "upsert grade", err)
	}
	return nil
}

// FinalizeAttemptScore overwrites the attempt's aggregate fields and marks
// it scored. The write is unconditional so rescoring stays idempotent.
func (s *Store) FinalizeAttemptScore(attemptID string, score float64, correct, wrong, skipped int) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE attempts
		 SET status = 'scored', score = ?, correct_count = ?, wrong_count = ?, skipped_count = ?, scored_at = ?
		 WHERE id = ?`,
		score, correct, wrong, skipped, now, attemptID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "finalize attempt score", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "attempt not found")
	}
	return nil
}
