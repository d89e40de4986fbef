// Package generation drives the asynchronous exam-generation pipeline:
// content retrieval, question synthesis, and transactional persistence,
// with progress reported through the job state store after every stage.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/examforge/examforge/internal/apperr"
	"github.com/examforge/examforge/internal/billing"
	"github.com/examforge/examforge/internal/content"
	"github.com/examforge/examforge/internal/i18n"
	"github.com/examforge/examforge/internal/jobstate"
	"github.com/examforge/examforge/internal/llm"
	"github.com/examforge/examforge/internal/model"
)

// Progress checkpoints are coarse and fixed: the model call yields no
// meaningful sub-stage signal, so finer interpolation would be misleading.
const (
	progressSearching  = 10
	progressGenerating = 40
	progressCompleting = 70
)

// Synthesizer produces structured questions from retrieved content.
type Synthesizer interface {
	GenerateQuestions(ctx context.Context, in llm.SynthesisInput) ([]model.DraftQuestion, error)
}

// ContentSearcher fetches candidate reference passages.
type ContentSearcher interface {
	Search(q content.Query) ([]model.ContentChunk, error)
}

// ExamWriter transactionally materializes a question set.
type ExamWriter interface {
	CreateExamWithQuestions(exam model.Exam, drafts []model.DraftQuestion) (model.Exam, error)
}

// Request is one client-facing generation request.
type Request struct {
	Subject       string           `json:"subject"`
	Topics        []string         `json:"topics"`
	QuestionCount int              `json:"question_count"`
	Difficulty    model.Difficulty `json:"difficulty"`
	Language      string           `json:"language"`
}

// MaxQuestionCount bounds one generation request.
const MaxQuestionCount = 50

// Orchestrator sequences the pipeline stages for each job. Jobs for
// different ids are fully independent; each runs as one goroutine with no
// shared mutable state beyond the stores.
type Orchestrator struct {
	jobs       *jobstate.Store
	retriever  ContentSearcher
	synth      Synthesizer
	writer     ExamWriter
	gate       billing.UsageGate
	logger     *slog.Logger
	llmTimeout time.Duration
	chunkLimit int
}

// Config carries the orchestrator's collaborators and tunables.
type Config struct {
	Jobs       *jobstate.Store
	Retriever  ContentSearcher
	Synth      Synthesizer
	Writer     ExamWriter
	Gate       billing.UsageGate
	Logger     *slog.Logger
	LLMTimeout time.Duration
	ChunkLimit int
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 2 * time.Minute
	}
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = content.DefaultLimit
	}
	return &Orchestrator{
		jobs:       cfg.Jobs,
		retriever:  cfg.Retriever,
		synth:      cfg.Synth,
		writer:     cfg.Writer,
		gate:       cfg.Gate,
		logger:     cfg.Logger.With("component", "orchestrator"),
		llmTimeout: cfg.LLMTimeout,
		chunkLimit: cfg.ChunkLimit,
	}
}

// Start validates the request, consults the usage gate, creates the job,
// and launches the pipeline. It returns the job id immediately; clients
// observe progress through the job state store.
func (o *Orchestrator) Start(ctx context.Context, owner model.User, req Request) (string, error) {
	if req.Subject == "" {
		return "", apperr.New(apperr.KindValidation, "subject is required")
	}
	if req.QuestionCount < 1 || req.QuestionCount > MaxQuestionCount {
		return "", apperr.New(apperr.KindValidation,
			fmt.Sprintf("question count must be between 1 and %d", MaxQuestionCount))
	}
	if !model.ValidDifficulty(req.Difficulty) {
		return "", apperr.New(apperr.KindValidation, fmt.Sprintf("unknown difficulty %q", req.Difficulty))
	}
	if req.Language == "" {
		req.Language = "en"
	}

	// Fail fast before creating the job or touching any quota-relevant
	// resource.
	ok, err := o.gate.CanGenerateExam(ctx, owner.ID, req.QuestionCount)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "usage gate check", err)
	}
	if !ok {
		return "", apperr.New(apperr.KindValidation, i18n.TIn(req.Language, "ErrQuotaExceeded"))
	}

	job, err := o.jobs.Create(jobstate.Spec{
		OwnerID:       owner.ID,
		Subject:       req.Subject,
		Topics:        req.Topics,
		QuestionCount: req.QuestionCount,
		Difficulty:    req.Difficulty,
		Language:      req.Language,
		Stage:         i18n.TIn(req.Language, "StagePending"),
	})
	if err != nil {
		return "", err
	}

	// The pipeline outlives the originating request; it must not be
	// cancelled when the HTTP request ends.
	go o.run(context.Background(), job)

	return job.ID, nil
}

// run drives one job through its stages. Every exit path leaves the job in
// a terminal state.
func (o *Orchestrator) run(ctx context.Context, job model.GenerationJob) {
	log := o.logger.With("job_id", job.ID, "subject", job.Subject)

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", "panic", r)
			o.fail(job, i18n.TIn(job.Language, "ErrInternal"))
		}
	}()

	// searching
	if !o.advance(log, job, model.JobSearching, "StageSearching", progressSearching) {
		return
	}
	chunks, err := o.retriever.Search(content.Query{
		Subject:  job.Subject,
		Topics:   job.Topics,
		Language: job.Language,
		Limit:    o.chunkLimit,
	})
	if err != nil {
		log.Error("content retrieval failed", "error", err)
		o.fail(job, i18n.TdIn(job.Language, "ErrGenerationFailed", map[string]any{"Reason": err.Error()}))
		return
	}
	if len(chunks) == 0 {
		log.Info("no content found")
		o.fail(job, i18n.TIn(job.Language, "ErrNoContent"))
		return
	}

	// generating
	if !o.advance(log, job, model.JobGenerating, "StageGenerating", progressGenerating) {
		return
	}
	genCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	drafts, err := o.synth.GenerateQuestions(genCtx, llm.SynthesisInput{
		Chunks:     chunks,
		Subject:    job.Subject,
		Topics:     job.Topics,
		Count:      job.QuestionCount,
		Difficulty: job.Difficulty,
		Language:   job.Language,
	})
	cancel()
	if err != nil {
		log.Error("question synthesis failed", "error", err, "kind", apperr.KindOf(err))
		o.fail(job, i18n.TdIn(job.Language, "ErrGenerationFailed", map[string]any{"Reason": err.Error()}))
		return
	}
	if len(drafts) < job.QuestionCount {
		// Deliberate policy: persist what was validly produced.
		log.Warn("model under-delivered", "requested", job.QuestionCount, "got", len(drafts))
	}

	// completing
	if !o.advance(log, job, model.JobCompleting, "StageCompleting", progressCompleting) {
		return
	}
	exam := model.Exam{
		OwnerID:    job.OwnerID,
		Title:      i18n.TdIn(job.Language, "ExamTitle", map[string]any{"Subject": job.Subject}),
		Difficulty: job.Difficulty,
		Topics:     job.Topics,
		Language:   job.Language,
		Description: i18n.TdIn(job.Language, "ExamDescription", map[string]any{
			"Difficulty": string(job.Difficulty),
			"Count":      len(drafts),
		}),
	}
	exam, err = o.writer.CreateExamWithQuestions(exam, drafts)
	if err != nil {
		log.Error("exam persistence failed", "error", err)
		o.fail(job, i18n.TdIn(job.Language, "ErrPersistFailed", map[string]any{"Reason": err.Error()}))
		return
	}

	if _, err := o.jobs.Complete(job.ID, exam.ID, i18n.TIn(job.Language, "StageCompleted")); err != nil {
		log.Error("complete transition failed", "error", err)
		return
	}
	log.Info("generation completed", "exam_id", exam.ID, "questions", len(drafts))
}

func (o *Orchestrator) advance(log *slog.Logger, job model.GenerationJob, status model.JobStatus, stageID string, progress int) bool {
	if _, err := o.jobs.Advance(job.ID, status, i18n.TIn(job.Language, stageID), progress); err != nil {
		log.Error("stage transition failed", "status", status, "error", err)
		return false
	}
	return true
}

func (o *Orchestrator) fail(job model.GenerationJob, message string) {
	if _, err := o.jobs.Fail(job.ID, message); err != nil {
		o.logger.Error("fail transition failed", "job_id", job.ID, "error", err)
	}
}
