// Package scoring grades submitted attempts: deterministic equality for
// closed-form questions, model-assisted rubric scoring for free-text
// answers. Scoring is idempotent; every per-question write is an upsert
// and the aggregate is overwritten, never accumulated.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/llm"
	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/store"
)

// CorrectThreshold is the rubric score at or above which a free-text
// answer counts as correct.
const CorrectThreshold = 0.7

// Grader performs model-assisted rubric scoring of one free-text answer.
type Grader interface {
	GradeAnswer(ctx context.Context, q model.Question, answer, language string) (llm.GradeResult, error)
}

// Result is the aggregate outcome of scoring one attempt.
type Result struct {
	Score          float64 `json:"score"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
}

// Engine scores attempts against their exam's questions.
type Engine struct {
	store      *store.Store
	grader     Grader
	logger     *slog.Logger
	llmTimeout time.Duration
}

// New creates a scoring engine.
func New(s *store.Store, g Grader, logger *slog.Logger, llmTimeout time.Duration) *Engine {
	if llmTimeout <= 0 {
		llmTimeout = time.Minute
	}
	return &Engine{store: s, grader: g, logger: logger.With("component", "scoring"), llmTimeout: llmTimeout}
}

// ScoreAttempt grades every answer of a submitted attempt and persists the
// aggregate. A rubric-grading failure for one question does not abort the
// rest: the affected answer stays ungraded, the attempt stays submitted,
// and the returned error tells the caller to re-invoke. Re-invocation
// regrades only what is missing a grade; closed-form grades are
// recomputed to the same values.
func (e *Engine) ScoreAttempt(ctx context.Context, attemptID string) (Result, error) {
	attempt, err := e.store.GetAttempt(attemptID)
	if err != nil {
		return Result{}, err
	}
	if attempt.Status == model.AttemptInProgress {
		return Result{}, apperr.New(apperr.KindValidation, "attempt has not been submitted")
	}

	exam, err := e.store.GetExam(attempt.ExamID)
	if err != nil {
		return Result{}, err
	}
	questions, err := e.store.GetQuestionsForExam(exam.ID)
	if err != nil {
		return Result{}, err
	}
	if len(questions) == 0 {
		return Result{}, apperr.New(apperr.KindConsistency, "exam has no questions")
	}
	answers, err := e.store.GetAnswersForAttempt(attemptID)
	if err != nil {
		return Result{}, err
	}

	log := e.logger.With("attempt_id", attemptID, "exam_id", exam.ID)

	var (
		sumPoints      float64
		correct, wrong int
		skipped        int
		ungraded       int
	)
	for _, q := range questions {
		ans, ok := answers[q.ID]
		if !ok || ans.Answer == nil || strings.TrimSpace(*ans.Answer) == "" {
			// Skipped: no credit, not counted as wrong.
			if err := e.store.UpsertGrade(attemptID, q.ID, false, 0, nil); err != nil {
				return Result{}, err
			}
			skipped++
			continue
		}

		switch q.Type {
		case model.QuestionMultipleChoice, model.QuestionTrueFalse:
			isCorrect := answersEqual(*ans.Answer, q.CorrectAnswer)
			points := 0.0
			if isCorrect {
				points = 1.0
				correct++
			} else {
				wrong++
			}
			if err := e.store.UpsertGrade(attemptID, q.ID, isCorrect, points, nil); err != nil {
				return Result{}, err
			}
			sumPoints += points

		case model.QuestionShortAnswer:
			// A grade persisted by an earlier run is reused as-is, so
			// re-invocation cannot shift the aggregate.
			if ans.IsCorrect != nil {
				if *ans.IsCorrect {
					correct++
				} else {
					wrong++
				}
				sumPoints += ans.PointsEarned
				continue
			}
			gradeCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
			grade, err := e.grader.GradeAnswer(gradeCtx, q, *ans.Answer, exam.Language)
			cancel()
			if err != nil {
				// Surfaced, never silently zeroed: the answer keeps no
				// grade and the attempt stays submitted for a retry.
				log.Error("rubric grading failed", "question_id", q.ID, "error", err)
				ungraded++
				continue
			}
			isCorrect := grade.Score >= CorrectThreshold
			if isCorrect {
				correct++
			} else {
				wrong++
			}
			var feedback *string
			if grade.Feedback != "" {
				feedback = &grade.Feedback
			}
			if err := e.store.UpsertGrade(attemptID, q.ID, isCorrect, grade.Score, feedback); err != nil {
				return Result{}, err
			}
			sumPoints += grade.Score

		default:
			return Result{}, apperr.New(apperr.KindConsistency,
				fmt.Sprintf("question %s has unknown type %q", q.ID, q.Type))
		}
	}

	if ungraded > 0 {
		return Result{}, apperr.New(apperr.KindUpstream,
			fmt.Sprintf("%d answer(s) could not be graded; scoring left incomplete", ungraded))
	}

	score := math.Round(100*sumPoints/float64(len(questions))*100) / 100
	if err := e.store.FinalizeAttemptScore(attemptID, score, correct, wrong, skipped); err != nil {
		return Result{}, err
	}
	log.Info("attempt scored", "score", score, "correct", correct, "wrong", wrong, "skipped", skipped)

	return Result{Score: score, CorrectAnswers: correct, TotalQuestions: len(questions)}, nil
}

// answersEqual compares a submitted answer with the correct answer,
// trimming whitespace and folding case.
func answersEqual(submitted, correctAnswer string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(correctAnswer))
}
