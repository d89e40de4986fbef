package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/model"
)

const jobColumns = `id, owner_id, subject, topics, question_count, difficulty, language,
	status, stage, progress, exam_id, error_message, created_at, updated_at, completed_at`

// InsertJob stores a freshly created generation job.
func (s *Store) InsertJob(job model.GenerationJob) error {
	topics, err := json.Marshal(job.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO generation_jobs
		 (id, owner_id, subject, topics, question_count, difficulty, language, status, stage, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.OwnerID, job.Subject, string(topics), job.QuestionCount,
		job.Difficulty, job.Language, job.Status, job.Stage, job.Progress,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstream, "insert job", err)
	}
	return nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(id string) (model.GenerationJob, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM generation_jobs WHERE id = ?`, id)
	return scanJob(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (model.GenerationJob, error) {
	var (
		j      model.GenerationJob
		topics string
	)
	err := row.Scan(&j.ID, &j.OwnerID, &j.Subject, &topics, &j.QuestionCount,
		&j.Difficulty, &j.Language, &j.Status, &j.Stage, &j.Progress,
		&j.ExamID, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err == sql.ErrNoRows {
		return j, apperr.New(apperr.KindNotFound, "job not found")
	}
	if err != nil {
		return j, apperr.Wrap(apperr.KindUpstream, "scan job", err)
	}
	if err := json.Unmarshal([]byte(topics), &j.Topics); err != nil {
		return j, fmt.Errorf("unmarshal topics: %w", err)
	}
	return j, nil
}

// AdvanceJob moves a job to a new non-terminal status. Progress never goes
// backward; advancing a terminal job is a programming error and is rejected.
func (s *Store) AdvanceJob(id string, status model.JobStatus, stage string, progress int) (model.GenerationJob, error) {
	if status.Terminal() {
		return model.GenerationJob{}, apperr.New(apperr.KindConsistency,
			"advance cannot set a terminal status; use CompleteJob or FailJob")
	}
	res, err := s.db.Exec(
		`UPDATE generation_jobs
		 SET status = ?, stage = ?,
		     progress = CASE WHEN ? > progress THEN ? ELSE progress END,
		     updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		status, stage, progress, progress, time.Now().UTC(), id,
	)
	if err != nil {
		return model.GenerationJob{}, apperr.Wrap(apperr.KindUpstream, "advance job", err)
	}
	return s.afterJobWrite(id, res)
}

// CompleteJob marks a job completed with its produced exam.
func (s *Store) CompleteJob(id, examID, stage string) (model.GenerationJob, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE generation_jobs
		 SET status = 'completed', stage = ?, progress = 100, exam_id = ?, updated_at = ?, completed_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		stage, examID, now, now, id,
	)
	if err != nil {
		return model.GenerationJob{}, apperr.Wrap(apperr.KindUpstream, "complete job", err)
	}
	return s.afterJobWrite(id, res)
}

// FailJob marks a job failed with a human-readable message.
func (s *Store) FailJob(id, message string) (model.GenerationJob, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE generation_jobs
		 SET status = 'failed', error_message = ?, updated_at = ?, completed_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		message, now, now, id,
	)
	if err != nil {
		return model.GenerationJob{}, apperr.Wrap(apperr.KindUpstream, "fail job", err)
	}
	return s.afterJobWrite(id, res)
}

// afterJobWrite distinguishes "no such job" from "job already terminal" when
// a guarded update matched no rows, and returns the fresh row otherwise.
func (s *Store) afterJobWrite(id string, res sql.Result) (model.GenerationJob, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return model.GenerationJob{}, apperr.Wrap(apperr.KindUpstream, "rows affected", err)
	}
	job, getErr := s.GetJob(id)
	if n == 0 {
		if getErr != nil {
			return model.GenerationJob{}, getErr
		}
		return model.GenerationJob{}, apperr.New(apperr.KindConsistency,
			fmt.Sprintf("job %s is already %s", id, job.Status))
	}
	return job, getErr
}

// StaleJobs returns non-terminal jobs not updated since the cutoff. Used by
// the reconciliation sweep for jobs orphaned by a crashed process.
func (s *Store) StaleJobs(cutoff time.Time) ([]model.GenerationJob, error) {
	rows, err := s.db.Query(
		`SELECT `+jobColumns+` FROM generation_jobs
		 WHERE status NOT IN ('completed', 'failed') AND updated_at < ?`, cutoff,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "query stale jobs", err)
	}
	defer rows.Close()

	var jobs []model.GenerationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
