package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dubcast/internal/logging"
	"dubcast/internal/queue"
	"dubcast/internal/services"
)

const (
	sseProgressEvent = "progress"
	sseDoneEvent     = "done"

	wsWriteTimeout = 10 * time.Second
)

// handleStream serves the step log over SSE: the persisted backlog in
// canonical order, then live updates, then a single done event once the job
// reaches a terminal status.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.writeError(w, services.Wrap(services.ErrValidation, "", "", "streaming unsupported by connection", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates, cancel, live := s.hub.Subscribe(job.ID)
	if live {
		defer cancel()
		for {
			select {
			case update, open := <-updates:
				if !open {
					return
				}
				if update.Done {
					writeSSE(w, sseDoneEvent, map[string]string{"job_id": job.ID})
					flusher.Flush()
					return
				}
				writeSSE(w, sseProgressEvent, update.Event)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}

	// No live feed: the job finished or predates this process. Replay the
	// persisted log.
	steps, err := s.store.Steps(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("load steps for stream", logging.Error(err))
		return
	}
	for _, event := range steps {
		writeSSE(w, sseProgressEvent, event)
	}
	if job.Status.IsTerminal() {
		writeSSE(w, sseDoneEvent, map[string]string{"job_id": job.ID})
	}
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

type wsMessage struct {
	Type  string           `json:"type"`
	Event *queue.StepEvent `json:"event,omitempty"`
	JobID string           `json:"job_id,omitempty"`
}

// handleWebsocket serves the same feed as handleStream over a websocket.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	send := func(msg wsMessage) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(msg)
	}

	updates, cancel, live := s.hub.Subscribe(job.ID)
	if !live {
		steps, err := s.store.Steps(r.Context(), job.ID)
		if err != nil {
			s.logger.Error("load steps for websocket", logging.Error(err))
			return
		}
		for i := range steps {
			if send(wsMessage{Type: sseProgressEvent, Event: &steps[i]}) != nil {
				return
			}
		}
		if job.Status.IsTerminal() {
			_ = send(wsMessage{Type: sseDoneEvent, JobID: job.ID})
		}
		return
	}
	defer cancel()

	for {
		select {
		case update, open := <-updates:
			if !open {
				return
			}
			if update.Done {
				_ = send(wsMessage{Type: sseDoneEvent, JobID: job.ID})
				return
			}
			event := update.Event
			if send(wsMessage{Type: sseProgressEvent, Event: &event}) != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
