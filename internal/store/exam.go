package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/model"
)

// CreateExamWithQuestions materializes a generated question set as one exam
// row plus its question rows in a single transaction. The exam is only ever
// visible as ready together with all of its questions.
func (s *Store) CreateExamWithQuestions(exam model.Exam, drafts []model.DraftQuestion) (model.Exam, error) {
	if len(drafts) == 0 {
		return model.Exam{}, apperr.New(apperr.KindConsistency, "refusing to create exam with zero questions")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return model.Exam{}, apperr.Wrap(apperr.KindUpstream, "begin exam transaction", err)
	}
	defer tx.Rollback()

	exam.ID = uuid.NewString()
	exam.TotalQuestions = len(drafts)
	exam.Status = model.ExamReady
	exam.CreatedAt = time.Now().UTC()

	topics, err := json.Marshal(exam.Topics)
	if err != nil {
		return model.Exam{}, fmt.Errorf("marshal topics: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO exams (id, owner_id, title, description, difficulty, total_questions, topics, language, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exam.ID, exam.OwnerID, exam.Title, exam.Description, exam.Difficulty,
		exam.TotalQuestions, string(topics), exam.Language, exam.Status, exam.CreatedAt,
	)
	if err != nil {
		return model.Exam{}, apperr.Wrap(apperr.KindUpstream, "insert exam", err)
	}

	for i, d := range drafts {
		var options sql.NullString
		if d.Type == model.QuestionMultipleChoice {
			b, err := json.Marshal(d.Options)
			if err != nil {
				return model.Exam{}, fmt.Errorf("marshal options: %w", err)
			}
			options = sql.NullString{String: string(b), Valid: true}
		}
		_, err = tx.Exec(
			`INSERT INTO questions (id, exam_id, number, type, text, options, correct_answer, explanation, difficulty)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), exam.ID, i+1, d.Type, d.Text, options, d.CorrectAnswer, d.Explanation, d.Difficulty,
		)
		if err != nil {
			return model.Exam{}, apperr.Wrap(apperr.KindUpstream, fmt.Sprintf("insert question %d", i+1), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Exam{}, apperr.Wrap(apperr.KindUpstream, "commit exam transaction", err)
	}
	return exam, nil
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id string) (model.Exam, error) {
	var (
		e      model.Exam
		topics string
	)
	err := s.db.QueryRow(
		`SELECT id, owner_id, title, description, difficulty, total_questions, topics, language, status, created_at
		 FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.Difficulty,
		&e.TotalQuestions, &topics, &e.Language, &e.Status, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, apperr.New(apperr.KindNotFound, "exam "+id)
	}
	if err != nil {
		return e, apperr.Wrap(apperr.KindUpstream, "get exam", err)
	}
	if err := json.Unmarshal([]byte(topics), &e.Topics); err != nil {
		return e, fmt.Errorf("unmarshal topics: %w", err)
	}
	return e, nil
}

// GetQuestionsForExam returns an exam's questions ordered by number.
func (s *Store) GetQuestionsForExam(examID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, number, type, text, options, correct_answer, explanation, difficulty
		 FROM questions WHERE exam_id = ? ORDER BY number`, examID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "query questions", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q       model.Question
			options sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Number, &q.Type, &q.Text, &options,
			&q.CorrectAnswer, &q.Explanation, &q.Difficulty); err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "scan question", err)
		}
		if options.Valid {
			if err := json.Unmarshal([]byte(options.String), &q.Options); err != nil {
				return nil, fmt.Errorf("unmarshal options: %w", err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListExams returns all ready exams owned by a user, newest first.
func (s *Store) ListExams(ownerID string) ([]model.Exam, error) {
	rows, err := s.db.Query(
		`SELECT id, owner_id, title, description, difficulty, total_questions, topics, language, status, created_at
		 FROM exams WHERE owner_id = ? AND status = 'ready' ORDER BY created_at DESC`, ownerID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "query exams", err)
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var (
			e      model.Exam
			topics string
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.Difficulty,
			&e.TotalQuestions, &topics, &e.Language, &e.Status, &e.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "scan exam", err)
		}
		if err := json.Unmarshal([]byte(topics), &e.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
