package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/examforge/examforge/internal/apperr"
)

// handleJobEvents streams job updates as server-sent events. The current
// snapshot is sent first, then every subsequent write, until the job
// reaches a terminal state or the client disconnects.
func (h *Handler) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")

	// Subscribe before the snapshot read so no write can fall between.
	updates, unsubscribe := h.jobs.Subscribe(jobID)
	defer unsubscribe()

	job, err := h.jobs.Get(jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if job.OwnerID != user.ID {
		h.writeError(w, apperr.New(apperr.KindNotFound, "job not found"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, apperr.New(apperr.KindUpstream, "streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	send := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			h.logger.Warn("marshal job event", "error", err)
			return
		}
		fmt.Fprintf(w, "event: job\ndata: %s\n\n", data)
		flusher.Flush()
	}

	send(job)
	if job.Status.Terminal() {
		return
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case update, ok := <-updates:
			if !ok {
				return
			}
			send(update)
			if update.Status.Terminal() {
				return
			}
		}
	}
}
