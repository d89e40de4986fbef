package model

import (
	"context"
	"time"
)

// User identifies the owner of jobs, exams, and attempts. It comes from
// the external identity provider; the core only stamps it onto rows.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ValidDifficulty reports whether d is a known difficulty level.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// JobStatus represents the status of a generation job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobSearching  JobStatus = "searching"
	JobGenerating JobStatus = "generating"
	JobCompleting JobStatus = "completing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// GenerationJob is the durable record of one exam-generation run.
// It is created and mutated only by the orchestrator; clients observe it
// through the job state store.
type GenerationJob struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Subject       string     `json:"subject"`
	Topics        []string   `json:"topics"`
	QuestionCount int        `json:"question_count"`
	Difficulty    Difficulty `json:"difficulty"`
	Language      string     `json:"language"`
	Status        JobStatus  `json:"status"`
	Stage         string     `json:"stage"`
	Progress      int        `json:"progress"`
	ExamID        *string    `json:"exam_id,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ContentChunk is a unit of retrievable reference text. The core treats
// chunks as an immutable read model.
type ContentChunk struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Subject    string   `json:"subject"`
	Topic      string   `json:"topic"`
	Language   string   `json:"language"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// ExamStatus represents exam visibility.
type ExamStatus string

const (
	ExamDraft ExamStatus = "draft"
	ExamReady ExamStatus = "ready"
)

// Exam is a generated question set. It becomes ready only together with
// all of its questions.
type Exam struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Difficulty     Difficulty `json:"difficulty"`
	TotalQuestions int        `json:"total_questions"`
	Topics         []string   `json:"topics"`
	Language       string     `json:"language"`
	Status         ExamStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// QuestionType represents the answer format of a question.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionTrueFalse      QuestionType = "true_false"
)

// Question is one persisted exam question. Options is non-empty only for
// multiple_choice questions.
type Question struct {
	ID            string       `json:"id"`
	ExamID        string       `json:"exam_id"`
	Number        int          `json:"number"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	Difficulty    Difficulty   `json:"difficulty"`
}

// DraftQuestion is a synthesized question before persistence assigns it
// an id and a number.
type DraftQuestion struct {
	Type          QuestionType `json:"type"`
	Text          string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	Difficulty    Difficulty   `json:"difficulty"`
}

// AttemptStatus represents the lifecycle of an exam attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptScored     AttemptStatus = "scored"
)

// Attempt is one user's instance of taking an exam.
type Attempt struct {
	ID           string        `json:"id"`
	ExamID       string        `json:"exam_id"`
	UserID       string        `json:"user_id"`
	Number       int           `json:"number"`
	Status       AttemptStatus `json:"status"`
	Score        *float64      `json:"score,omitempty"`
	CorrectCount int           `json:"correct_count"`
	WrongCount   int           `json:"wrong_count"`
	SkippedCount int           `json:"skipped_count"`
	TimeSpentSec int           `json:"time_spent_sec"`
	StartedAt    time.Time     `json:"started_at"`
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"`
	ScoredAt     *time.Time    `json:"scored_at,omitempty"`
}

// SubmittedAnswer is one user's answer to one question within an attempt.
// A nil Answer means the question was skipped. IsCorrect stays nil until
// the answer has been graded.
type SubmittedAnswer struct {
	ID           string  `json:"id"`
	AttemptID    string  `json:"attempt_id"`
	QuestionID   string  `json:"question_id"`
	Answer       *string `json:"answer,omitempty"`
	IsCorrect    *bool   `json:"is_correct,omitempty"`
	PointsEarned float64 `json:"points_earned"`
	Feedback     *string `json:"feedback,omitempty"`
}

// ChunkImport is used for loading content chunks from JSON.
type ChunkImport struct {
	Text     string `json:"text"`
	Subject  string `json:"subject"`
	Topic    string `json:"topic"`
	Language string `json:"language"`
}
