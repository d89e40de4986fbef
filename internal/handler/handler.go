// Package handler exposes the generation and scoring core over HTTP. The
// UI layer renders job status and error_message fields directly; the
// core's responsibility ends at accurate terminal state.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/generation"
	"github.com/examforge/examforge/internal/identity"
	"github.com/examforge/examforge/internal/jobstate"
	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/scoring"
	"github.com/examforge/examforge/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	jobs     *jobstate.Store
	orch     *generation.Orchestrator
	scorer   *scoring.Engine
	identity identity.Provider
	logger   *slog.Logger
}

// New creates a new Handler.
func New(s *store.Store, jobs *jobstate.Store, orch *generation.Orchestrator, scorer *scoring.Engine, idp identity.Provider, logger *slog.Logger) *Handler {
	return &Handler{store: s, jobs: jobs, orch: orch, scorer: scorer, identity: idp, logger: logger.With("component", "http")}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/generations", h.handleStartGeneration)
	r.Get("/api/jobs/{jobID}", h.handleGetJob)
	r.Get("/api/jobs/{jobID}/events", h.handleJobEvents)
	r.Get("/api/exams", h.handleListExams)
	r.Get("/api/exams/{examID}", h.handleGetExam)
	r.Post("/api/exams/{examID}/attempts", h.handleStartAttempt)
	r.Post("/api/attempts/{attemptID}/answers", h.handleSubmitAnswers)
	r.Post("/api/attempts/{attemptID}/submit", h.handleSubmitAttempt)
	r.Post("/api/attempts/{attemptID}/score", h.handleScoreAttempt)
	r.Get("/api/attempts/{attemptID}", h.handleGetAttempt)
}

func (h *Handler) handleStartGeneration(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req generation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindValidation, "decode request", err))
		return
	}
	jobID, err := h.orch.Start(r.Context(), user, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if job.OwnerID != user.ID {
		h.writeError(w, apperr.New(apperr.KindNotFound, "job not found"))
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	exams, err := h.store.ListExams(user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, exams)
}

// takerQuestion is the question view served to exam takers: the correct
// answer and explanation stay server-side until scoring.
type takerQuestion struct {
	ID      string             `json:"id"`
	Number  int                `json:"number"`
	Type    model.QuestionType `json:"type"`
	Text    string             `json:"text"`
	Options []string           `json:"options,omitempty"`
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.currentUser(w, r); !ok {
		return
	}
	exam, err := h.store.GetExam(chi.URLParam(r, "examID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	questions, err := h.store.GetQuestionsForExam(exam.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]takerQuestion, 0, len(questions))
	for _, q := range questions {
		views = append(views, takerQuestion{
			ID: q.ID, Number: q.Number, Type: q.Type, Text: q.Text, Options: q.Options,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"exam": exam, "questions": views})
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	exam, err := h.store.GetExam(chi.URLParam(r, "examID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	attempt, err := h.store.CreateAttempt(exam.ID, user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, attempt)
}

func (h *Handler) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	attempt, ok := h.ownAttempt(w, r, user)
	if !ok {
		return
	}
	var body []struct {
		QuestionID string  `json:"question_id"`
		Answer     *string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindValidation, "decode answers", err))
		return
	}
	for _, a := range body {
		err := h.store.UpsertAnswer(model.SubmittedAnswer{
			AttemptID:  attempt.ID,
			QuestionID: a.QuestionID,
			Answer:     a.Answer,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	attempt, ok := h.ownAttempt(w, r, user)
	if !ok {
		return
	}
	var body struct {
		TimeSpentSec int `json:"time_spent_sec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperr.Wrap(apperr.KindValidation, "decode submit", err))
		return
	}
	if err := h.store.SubmitAttempt(attempt.ID, body.TimeSpentSec); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleScoreAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	attempt, ok := h.ownAttempt(w, r, user)
	if !ok {
		return
	}
	result, err := h.scorer.ScoreAttempt(r.Context(), attempt.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	attempt, ok := h.ownAttempt(w, r, user)
	if !ok {
		return
	}
	answers, err := h.store.GetAnswersForAttempt(attempt.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"attempt": attempt, "answers": answers})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	user, err := h.identity.CurrentUser(r.Context())
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return model.User{}, false
	}
	return user, true
}

func (h *Handler) ownAttempt(w http.ResponseWriter, r *http.Request, user model.User) (model.Attempt, bool) {
	attempt, err := h.store.GetAttempt(chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, err)
		return model.Attempt{}, false
	}
	if attempt.UserID != user.ID {
		h.writeError(w, apperr.New(apperr.KindNotFound, "attempt not found"))
		return model.Attempt{}, false
	}
	return attempt, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindNotFound, apperr.KindEmptyResult:
			status = http.StatusNotFound
		case apperr.KindValidation:
			status = http.StatusBadRequest
		case apperr.KindUpstream:
			status = http.StatusBadGateway
		case apperr.KindConsistency:
			status = http.StatusConflict
		}
	}
	if status >= 500 {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
