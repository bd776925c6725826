// Package pipeline drives a job through the fixed stage sequence, persisting
// each step transition and publishing it to live subscribers before the next
// stage begins.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"dubcast/internal/artifacts"
	"dubcast/internal/config"
	"dubcast/internal/logging"
	"dubcast/internal/progress"
	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/speaker"
	"dubcast/internal/stage"
	"dubcast/internal/textutil"
)

// Session carries the coordination state the scheduler shares with a single
// running job: the channel that delivers validated speaker configuration and
// the detached flag set when the job is deleted mid-flight.
type Session struct {
	resume   chan []speaker.Config
	waiting  atomic.Bool
	detached atomic.Bool
}

// NewSession constructs the per-run session. The resume channel is buffered so
// a synchronous speaker submission never blocks the API handler.
func NewSession() *Session {
	return &Session{resume: make(chan []speaker.Config, 1)}
}

// TryResume hands validated speaker configs to the parked run. It reports
// false when the run is not currently waiting for speaker input; at most one
// resume is ever accepted.
func (s *Session) TryResume(configs []speaker.Config) bool {
	if !s.waiting.CompareAndSwap(true, false) {
		return false
	}
	s.resume <- configs
	return true
}

// Waiting reports whether the run is parked at the speaker-input step.
func (s *Session) Waiting() bool {
	return s.waiting.Load()
}

// Detach marks the run as orphaned by a delete. The executor keeps running but
// stops persisting and publishing.
func (s *Session) Detach() {
	s.detached.Store(true)
}

// Detached reports whether the backing job record was deleted.
func (s *Session) Detached() bool {
	return s.detached.Load()
}

// Executor runs the stage sequence for one job at a time. It is safe to share
// a single Executor across concurrent runs.
type Executor struct {
	cfg      *config.Config
	store    *queue.Store
	hub      *progress.Hub
	stages   []stage.Handler
	speakers *SpeakersStage
	uploader *artifacts.Uploader
	logger   *slog.Logger
}

// Options configures an Executor.
type Options struct {
	Config   *config.Config
	Store    *queue.Store
	Hub      *progress.Hub
	Stages   []stage.Handler
	Uploader *artifacts.Uploader
	Logger   *slog.Logger
}

// New constructs an Executor. When Stages is nil the caller must set it later
// via SetStages before Run is called.
func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	exec := &Executor{
		cfg:      opts.Config,
		store:    opts.Store,
		hub:      opts.Hub,
		stages:   opts.Stages,
		uploader: opts.Uploader,
		logger:   logger,
	}
	for _, handler := range exec.stages {
		if s, ok := handler.(*SpeakersStage); ok {
			exec.speakers = s
		}
	}
	if exec.speakers == nil {
		exec.speakers = NewSpeakersStage()
	}
	return exec
}

// Stages builds the standard stage sequence from service clients.
func Stages(acquire *AcquireStage, transcribe *TranscribeStage, translate *TranslateStage, polish *PolishStage, summarize *SummarizeStage, speakers *SpeakersStage, synthesize *SynthesizeStage) []stage.Handler {
	return []stage.Handler{acquire, transcribe, translate, polish, summarize, speakers, synthesize}
}

// Run executes the full stage sequence for job. The job must already be marked
// running and persisted by the scheduler. Run owns all persistence from here:
// step transitions are written through before each stage advance, and the
// terminal status is stored before the feed closes.
func (e *Executor) Run(ctx context.Context, job *queue.Job, session *Session) error {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, e.logger).With(logging.String("source", job.Source.Label()))
	logger.Info("run started")

	run := &stage.Run{Job: job}
	dir, err := e.prepareRunDir(job)
	if err != nil {
		return e.fail(ctx, job, session, "", services.Details(err).Message, err)
	}
	run.Dir = dir

	for _, handler := range e.stages {
		step := handler.Step()

		if step == queue.StepSpeakers && job.SpeakerRequired {
			if err := e.runSpeakerInput(ctx, run, session, logger); err != nil {
				return err
			}
			continue
		}

		if err := e.emit(ctx, job, session, queue.StepEvent{
			Step:    step,
			Status:  queue.StepRunning,
			Message: stepLabel(step),
		}); err != nil {
			return e.fail(ctx, job, session, step, services.Details(err).Message, err)
		}

		summary, err := handler.Execute(ctx, run)
		if err != nil {
			message := services.Details(err).Message
			logger.Error("stage failed", logging.String("step", string(step)), logging.Error(err))
			return e.fail(ctx, job, session, step, message, err)
		}

		if err := e.advance(ctx, run, session, queue.StepEvent{
			Step:    step,
			Status:  queue.StepCompleted,
			Message: summary.Message,
			Detail:  summary.Detail,
		}); err != nil {
			return e.fail(ctx, job, session, step, services.Details(err).Message, err)
		}
		logger.Info("stage completed", logging.String("step", string(step)))
	}

	e.uploadArtifacts(ctx, job, logger)

	job.SetCompleted()
	if err := e.persistJob(ctx, job, session); err != nil {
		logger.Error("persist completion", logging.Error(err))
	}
	if !session.Detached() {
		e.hub.Finish(job.ID)
	}
	logger.Info("run completed")
	return nil
}

// runSpeakerInput handles the suspension protocol: derive and persist the
// detected tags, publish the waiting event, then park until the scheduler
// delivers validated configuration or the context ends. While the run is
// parked the waiting entry is the step log's only active entry; the speakers
// step itself runs only after configuration arrives.
func (e *Executor) runSpeakerInput(ctx context.Context, run *stage.Run, session *Session, logger *slog.Logger) error {
	job := run.Job

	job.SpeakerTags = speaker.Tags(run.Polished)
	if err := e.persistJob(ctx, job, session); err != nil {
		return e.fail(ctx, job, session, queue.StepSpeakers, services.Details(err).Message, err)
	}

	// Accept resumes before the waiting event is visible so a submission that
	// races the publish is never rejected.
	session.waiting.Store(true)
	if err := e.emit(ctx, job, session, queue.StepEvent{
		Step:    queue.StepSpeakerInput,
		Status:  queue.StepWaiting,
		Message: "Waiting for speaker configuration",
		Detail:  strings.Join(job.SpeakerTags, ", "),
	}); err != nil {
		session.waiting.Store(false)
		return e.fail(ctx, job, session, queue.StepSpeakerInput, services.Details(err).Message, err)
	}
	logger.Info("waiting for speaker input", logging.Int("speakers", len(job.SpeakerTags)))

	var configs []speaker.Config
	select {
	case configs = <-session.resume:
	case <-ctx.Done():
		session.waiting.Store(false)
		message := "daemon stopped while waiting for speaker input"
		return e.fail(ctx, job, session, queue.StepSpeakerInput, message, ctx.Err())
	}

	if err := e.emit(ctx, job, session, queue.StepEvent{
		Step:    queue.StepSpeakerInput,
		Status:  queue.StepCompleted,
		Message: "Speaker configuration received",
	}); err != nil {
		return e.fail(ctx, job, session, queue.StepSpeakerInput, services.Details(err).Message, err)
	}

	if err := e.emit(ctx, job, session, queue.StepEvent{
		Step:    queue.StepSpeakers,
		Status:  queue.StepRunning,
		Message: stepLabel(queue.StepSpeakers),
	}); err != nil {
		return e.fail(ctx, job, session, queue.StepSpeakers, services.Details(err).Message, err)
	}

	job.SpeakerSubmitted = true
	if err := e.speakers.Apply(run, configs); err != nil {
		return e.fail(ctx, job, session, queue.StepSpeakers, services.Details(err).Message, err)
	}

	if err := e.advance(ctx, run, session, queue.StepEvent{
		Step:    queue.StepSpeakers,
		Status:  queue.StepCompleted,
		Message: "Speaker profiles configured",
		Detail:  fmt.Sprintf("%d speakers", len(configs)),
	}); err != nil {
		return e.fail(ctx, job, session, queue.StepSpeakers, services.Details(err).Message, err)
	}
	logger.Info("speaker input applied", logging.Int("speakers", len(configs)))
	return nil
}

// advance publishes a completed step and writes the accumulated run state
// through before the next stage starts.
func (e *Executor) advance(ctx context.Context, run *stage.Run, session *Session, event queue.StepEvent) error {
	if err := e.emit(ctx, run.Job, session, event); err != nil {
		return err
	}
	run.ApplyResult()
	return e.persistJob(ctx, run.Job, session)
}

// emit upserts the step event and publishes it to subscribers. Detached runs
// skip both.
func (e *Executor) emit(ctx context.Context, job *queue.Job, session *Session, event queue.StepEvent) error {
	if session.Detached() {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := e.store.UpsertStep(ctx, job.ID, event); err != nil {
		return services.Wrap(services.ErrPersistence, string(event.Step), "upsert step", err.Error(), err)
	}
	e.hub.Publish(job.ID, event)
	return nil
}

func (e *Executor) persistJob(ctx context.Context, job *queue.Job, session *Session) error {
	if session.Detached() {
		return nil
	}
	if err := e.store.Update(ctx, job); err != nil {
		return services.Wrap(services.ErrPersistence, "", "update job", err.Error(), err)
	}
	return nil
}

// fail records the terminal failure: a failed step event carrying the
// collaborator's message verbatim, the failed job record, and the closed feed.
func (e *Executor) fail(ctx context.Context, job *queue.Job, session *Session, step queue.Step, message string, cause error) error {
	if step != "" && !session.Detached() {
		event := queue.StepEvent{
			Step:      step,
			Status:    queue.StepFailed,
			Message:   message,
			Timestamp: time.Now().UTC(),
		}
		if err := e.store.UpsertStep(ctx, job.ID, event); err != nil {
			e.logger.Error("persist failed step", logging.String("step", string(step)), logging.Error(err))
		}
		e.hub.Publish(job.ID, event)
	}

	job.SetFailed(message)
	if err := e.persistJob(ctx, job, session); err != nil {
		e.logger.Error("persist failure", logging.Error(err))
	}
	if !session.Detached() {
		e.hub.Finish(job.ID)
	}
	return cause
}

// prepareRunDir creates the per-job working directory under runs_dir.
func (e *Executor) prepareRunDir(job *queue.Job) (string, error) {
	name := textutil.SanitizeBaseName(job.DisplayName())
	suffix := job.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	dir := filepath.Join(e.cfg.Paths.RunsDir, name+"-"+suffix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrPersistence, "", "create run dir", err.Error(), err)
	}
	return dir, nil
}

// uploadArtifacts pushes finished artifacts to object storage when configured.
// Upload failures are logged, not fatal; the local artifacts remain the source
// of truth.
func (e *Executor) uploadArtifacts(ctx context.Context, job *queue.Job, logger *slog.Logger) {
	if e.uploader == nil || !e.uploader.Enabled() || job.Result == nil {
		return
	}
	targets := map[string]string{
		"dialogue.wav":    job.Result.DialogueAudio,
		"transcript.txt":  job.Result.Transcript,
		"translation.txt": job.Result.Translation,
		"polished.txt":    job.Result.Polished,
		"summary.txt":     job.Result.Summary,
	}
	for name, local := range targets {
		if local == "" {
			continue
		}
		url, err := e.uploader.Upload(ctx, local, job.ID, name)
		if err != nil {
			logger.Warn("artifact upload failed", logging.String("artifact", name), logging.Error(err))
			continue
		}
		if job.Result.Uploads == nil {
			job.Result.Uploads = make(map[string]string)
		}
		job.Result.Uploads[name] = url
	}
}

func stepLabel(step queue.Step) string {
	switch step {
	case queue.StepAcquire:
		return "Acquiring audio"
	case queue.StepTranscribe:
		return "Transcribing audio"
	case queue.StepTranslate:
		return "Translating transcript"
	case queue.StepPolish:
		return "Polishing dialogue"
	case queue.StepSummarize:
		return "Summarizing content"
	case queue.StepSpeakers:
		return "Deriving speaker profiles"
	case queue.StepSynthesize:
		return "Synthesizing dialogue audio"
	default:
		return string(step)
	}
}
