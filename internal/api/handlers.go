package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dubcast/internal/logging"
	"dubcast/internal/queue"
	"dubcast/internal/scheduler"
	"dubcast/internal/services"
)

const maxBodyBytes = 1 << 20

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return services.Wrap(services.ErrValidation, "", "", "invalid request body: "+err.Error(), nil)
	}
	return nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload SubmitPayload
	if err := decodeBody(w, r, &payload); err != nil {
		s.writeError(w, err)
		return
	}

	job, err := s.sched.Submit(r.Context(), scheduler.SubmitRequest{
		Source: queue.Source{
			YouTubeURL: strings.TrimSpace(payload.YouTubeURL),
			AudioURL:   strings.TrimSpace(payload.AudioURL),
			AudioPath:  strings.TrimSpace(payload.AudioPath),
		},
		Params: queue.Params{
			Provider: payload.Provider,
			Model:    payload.Model,
			Language: payload.Language,
			Speed:    payload.Speed,
		},
		SpeakerRequired: payload.SpeakerRequired,
		Name:            strings.TrimSpace(payload.Name),
		Note:            payload.Note,
		Tags:            payload.Tags,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, JobResponse{Job: fromJob(job)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, services.Wrap(services.ErrValidation, "", "", "unknown status "+value, nil))
			return
		}
		statuses = append(statuses, status)
	}

	jobs, err := s.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, services.Wrap(services.ErrPersistence, "", "list jobs", err.Error(), err))
		return
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, fromJob(job))
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: views})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	steps, err := s.store.Steps(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, services.Wrap(services.ErrPersistence, "", "load steps", err.Error(), err))
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: fromJob(job), Steps: fromSteps(steps)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.sched.Delete(r.Context(), jobID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": jobID})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	var patch MetadataPatch
	if err := decodeBody(w, r, &patch); err != nil {
		s.writeError(w, err)
		return
	}

	if patch.Name != nil {
		job.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Note != nil {
		job.Note = *patch.Note
	}
	if patch.Tags != nil {
		job.Tags = *patch.Tags
	}
	if patch.Published != nil {
		job.Published = *patch.Published
	}
	err := s.store.UpdateMetadata(r.Context(), job.ID, job.Name, job.Note, job.Tags, job.Published)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, services.Wrap(services.ErrNotFound, "", "", "job not found", nil))
		return
	}
	if err != nil {
		s.writeError(w, services.Wrap(services.ErrPersistence, "", "update metadata", err.Error(), err))
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: fromJob(job)})
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var payload ReorderPayload
	if err := decodeBody(w, r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.sched.Reorder(r.Context(), payload.IDs); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleList(w, r)
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, services.Wrap(services.ErrValidation, "", "", "invalid request body: "+err.Error(), nil))
		return
	}
	if err := s.sched.ResumeSpeakers(r.Context(), jobID, payload); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	settings := s.sched.Settings()
	s.writeJSON(w, http.StatusOK, SettingsView{
		ParallelEnabled: settings.ParallelEnabled,
		MaxConcurrent:   settings.MaxConcurrent,
		MaxQueue:        s.cfg.Pipeline.MaxQueue,
	})
}

func (s *Server) handleSettingsPatch(w http.ResponseWriter, r *http.Request) {
	var patch SettingsPatch
	if err := decodeBody(w, r, &patch); err != nil {
		s.writeError(w, err)
		return
	}

	current := s.sched.Settings()
	parallel := current.ParallelEnabled
	concurrent := current.MaxConcurrent
	if patch.ParallelEnabled != nil {
		parallel = *patch.ParallelEnabled
	}
	if patch.MaxConcurrent != nil {
		concurrent = *patch.MaxConcurrent
	}

	updated, err := s.sched.UpdateCapacity(r.Context(), parallel, concurrent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SettingsView{
		ParallelEnabled: updated.ParallelEnabled,
		MaxConcurrent:   updated.MaxConcurrent,
		MaxQueue:        s.cfg.Pipeline.MaxQueue,
	})
}

func (s *Server) handleSummaryAudio(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if err := s.actions.GenerateSummaryAudio(r.Context(), job); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: fromJob(job)})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if err := s.actions.MergeFinalAudio(r.Context(), job); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: fromJob(job)})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	var payload RegeneratePayload
	if err := decodeBody(w, r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.actions.RegenerateAudio(r.Context(), job, payload.Speakers); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: fromJob(job)})
}

// handleArtifact serves a named artifact from the job's run directory. Only
// files recorded on the result are exposed.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Result == nil {
		s.writeError(w, services.Wrap(services.ErrNotFound, "", "", "job has no artifacts", nil))
		return
	}

	name := chi.URLParam(r, "name")
	path, ok := artifactPath(job.Result, name)
	if !ok {
		s.writeError(w, services.Wrap(services.ErrNotFound, "", "", "unknown artifact "+name, nil))
		return
	}
	s.logger.Debug("serving artifact",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("artifact", name))
	http.ServeFile(w, r, path)
}

func artifactPath(result *queue.Result, name string) (string, bool) {
	candidates := map[string]string{
		"audio":         result.AudioFile,
		"transcript":    result.Transcript,
		"translation":   result.Translation,
		"polished":      result.Polished,
		"summary":       result.Summary,
		"speakers":      result.SpeakersFile,
		"dialogue":      result.DialogueAudio,
		"summary-audio": result.SummaryAudio,
		"final":         result.FinalAudio,
	}
	path, ok := candidates[name]
	if !ok || path == "" {
		return "", false
	}
	return filepath.Clean(path), true
}
