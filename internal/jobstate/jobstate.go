// Package jobstate is the single source of truth for generation-job
// status, stage, and progress. Every write is durable before any watcher
// sees it, and terminal states are sticky.
package jobstate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/examforge/examforge/internal/model"
	"github.com/examforge/examforge/internal/store"
)

// Spec describes the job to create.
type Spec struct {
	OwnerID       string
	Subject       string
	Topics        []string
	QuestionCount int
	Difficulty    model.Difficulty
	Language      string
	Stage         string
}

// Store persists job state and fans updated records out to subscribers.
type Store struct {
	db     *store.Store
	logger *slog.Logger

	mu       sync.RWMutex
	watchers map[string]map[*watcher]bool
}

type watcher struct {
	ch   chan model.GenerationJob
	once sync.Once
}

// New creates a job state store on top of the relational store.
func New(db *store.Store, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		logger:   logger.With("component", "jobstate"),
		watchers: make(map[string]map[*watcher]bool),
	}
}

// Create inserts a new pending job and returns it.
func (s *Store) Create(spec Spec) (model.GenerationJob, error) {
	now := time.Now().UTC()
	job := model.GenerationJob{
		ID:            uuid.NewString(),
		OwnerID:       spec.OwnerID,
		Subject:       spec.Subject,
		Topics:        spec.Topics,
		QuestionCount: spec.QuestionCount,
		Difficulty:    spec.Difficulty,
		Language:      spec.Language,
		Status:        model.JobPending,
		Stage:         spec.Stage,
		Progress:      0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.InsertJob(job); err != nil {
		return model.GenerationJob{}, err
	}
	return job, nil
}

// Get returns the current job record.
func (s *Store) Get(id string) (model.GenerationJob, error) {
	return s.db.GetJob(id)
}

// Advance moves a job to a new non-terminal status and notifies watchers.
// Progress never decreases; advancing a terminal job returns a consistency
// error.
func (s *Store) Advance(id string, status model.JobStatus, stage string, progress int) (model.GenerationJob, error) {
	job, err := s.db.AdvanceJob(id, status, stage, progress)
	if err != nil {
		return job, err
	}
	s.notify(job)
	return job, nil
}

// Complete marks a job completed with its produced exam and notifies
// watchers.
func (s *Store) Complete(id, examID, stage string) (model.GenerationJob, error) {
	job, err := s.db.CompleteJob(id, examID, stage)
	if err != nil {
		return job, err
	}
	s.notify(job)
	return job, nil
}

// Fail marks a job failed with a human-readable message and notifies
// watchers.
func (s *Store) Fail(id, message string) (model.GenerationJob, error) {
	job, err := s.db.FailJob(id, message)
	if err != nil {
		return job, err
	}
	s.notify(job)
	return job, nil
}

// Stale returns non-terminal jobs not updated since the cutoff.
func (s *Store) Stale(cutoff time.Time) ([]model.GenerationJob, error) {
	return s.db.StaleJobs(cutoff)
}

// Subscribe returns a channel that receives the updated job record after
// every write for this job id, plus an unsubscribe function. The channel
// is closed on unsubscribe.
func (s *Store) Subscribe(id string) (<-chan model.GenerationJob, func()) {
	w := &watcher{ch: make(chan model.GenerationJob, 16)}

	s.mu.Lock()
	set, ok := s.watchers[id]
	if !ok {
		set = make(map[*watcher]bool)
		s.watchers[id] = set
	}
	set[w] = true
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		if set, ok := s.watchers[id]; ok {
			delete(set, w)
			if len(set) == 0 {
				delete(s.watchers, id)
			}
		}
		s.mu.Unlock()
		w.once.Do(func() { close(w.ch) })
	}
	return w.ch, unsubscribe
}

func (s *Store) notify(job model.GenerationJob) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for w := range s.watchers[job.ID] {
		select {
		case w.ch <- job:
		default:
			s.logger.Warn("dropping job update; subscriber buffer full", "job_id", job.ID)
		}
	}
}
