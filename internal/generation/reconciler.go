package generation

import (
	"context"
	"time"

	"github.com/examforge/examforge/internal/i18n"
)

// ReconcileStale fails every job left in a non-terminal state past the
// staleness threshold. A job can only get stuck that way when the owning
// process died mid-stage, so the record is failed rather than resumed.
// Returns the number of jobs reconciled.
func (o *Orchestrator) ReconcileStale(staleAfter time.Duration) (int, error) {
	stale, err := o.jobs.Stale(time.Now().UTC().Add(-staleAfter))
	if err != nil {
		return 0, err
	}
	reconciled := 0
	for _, job := range stale {
		if _, err := o.jobs.Fail(job.ID, i18n.TIn(job.Language, "ErrInterrupted")); err != nil {
			o.logger.Error("reconcile failed", "job_id", job.ID, "error", err)
			continue
		}
		o.logger.Warn("reconciled stale job", "job_id", job.ID, "last_update", job.UpdatedAt)
		reconciled++
	}
	return reconciled, nil
}

// RunReconciler sweeps stale jobs once immediately and then on every tick
// until the context is cancelled.
func (o *Orchestrator) RunReconciler(ctx context.Context, interval, staleAfter time.Duration) {
	if _, err := o.ReconcileStale(staleAfter); err != nil {
		o.logger.Error("reconciliation sweep failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.ReconcileStale(staleAfter); err != nil {
				o.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}
