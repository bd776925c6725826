// Package scheduler admits jobs into a bounded queue and promotes them into a
// capped number of concurrency slots. All queue and slot state is guarded by
// one mutex; promotion happens inside the same critical section as the event
// that made it possible.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"dubcast/internal/config"
	"dubcast/internal/logging"
	"dubcast/internal/pipeline"
	"dubcast/internal/progress"
	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/speaker"
)

const (
	minSpeed = 0.25
	maxSpeed = 4.0
)

// SubmitRequest describes a new job. Exactly one Source field must be set.
type SubmitRequest struct {
	Source          queue.Source
	Params          queue.Params
	SpeakerRequired bool
	Name            string
	Note            string
	Tags            []string
}

type runtime struct {
	job     *queue.Job
	session *pipeline.Session
	cancel  context.CancelFunc
	deleted bool
}

// Scheduler owns the admission queue and the running set.
type Scheduler struct {
	cfg    *config.Config
	store  *queue.Store
	hub    *progress.Hub
	exec   *pipeline.Executor
	logger *slog.Logger

	mu              sync.Mutex
	queued          []string
	running         map[string]*runtime
	parallelEnabled bool
	maxConcurrent   int
	started         bool
	closed          bool

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// Options configures a Scheduler.
type Options struct {
	Config   *config.Config
	Store    *queue.Store
	Hub      *progress.Hub
	Executor *pipeline.Executor
	Logger   *slog.Logger
}

// New constructs a Scheduler. Call Start before submitting jobs.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		cfg:     opts.Config,
		store:   opts.Store,
		hub:     opts.Hub,
		exec:    opts.Executor,
		logger:  logger,
		running: make(map[string]*runtime),
	}
}

// Start performs restart recovery and loads persisted capacity settings. Jobs
// that were running when the previous process exited are marked failed;
// queued jobs re-enter the queue in their persisted order.
func (s *Scheduler) Start(ctx context.Context) error {
	interrupted, err := s.store.MarkInterrupted(ctx, queue.RestartInterruptReason)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "mark interrupted", err.Error(), err)
	}
	if interrupted > 0 {
		s.logger.Warn("marked interrupted jobs failed", logging.Int64("count", interrupted))
	}

	settings, err := s.store.LoadRuntimeSettings(ctx, queue.RuntimeSettings{
		ParallelEnabled: s.cfg.Pipeline.ParallelEnabled,
		MaxConcurrent:   s.cfg.Pipeline.MaxConcurrent,
	})
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "load settings", err.Error(), err)
	}

	persisted, err := s.store.List(ctx, queue.StatusQueued)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "load queued jobs", err.Error(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.parallelEnabled = settings.ParallelEnabled
	s.maxConcurrent = clampConcurrent(settings.MaxConcurrent)
	s.baseCtx, s.stop = context.WithCancel(context.WithoutCancel(ctx))
	s.started = true
	for _, job := range persisted {
		s.queued = append(s.queued, job.ID)
	}
	s.logger.Info("scheduler started",
		logging.Bool("parallel", s.parallelEnabled),
		logging.Int("max_concurrent", s.maxConcurrent),
		logging.Int("requeued", len(persisted)))
	if len(s.queued) > 0 {
		s.promoteLocked()
	}
	return nil
}

// Stop cancels any parked runs and waits for in-flight executors to finish.
// Actively executing stages are left to run to completion; only jobs waiting
// for speaker input are released.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, rt := range s.running {
		if rt.session.Waiting() {
			rt.cancel()
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.stop()
		return ctx.Err()
	}
	s.stop()
	return nil
}

// Submit validates and admits a new job, promoting it immediately when a slot
// is free.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*queue.Job, error) {
	if err := validateRequest(&req, s.cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return nil, services.Wrap(services.ErrValidation, "", "", "scheduler is not accepting jobs", nil)
	}
	if len(s.queued)+len(s.running) >= s.cfg.Pipeline.MaxQueue {
		return nil, services.Wrap(services.ErrQueueFull, "", "",
			fmt.Sprintf("queue is full (%d jobs pending or running)", len(s.queued)+len(s.running)), nil)
	}

	job := &queue.Job{
		ID:              uuid.NewString(),
		Status:          queue.StatusQueued,
		Source:          req.Source,
		Params:          req.Params,
		SpeakerRequired: req.SpeakerRequired,
		QueuePosition:   len(s.queued),
		Name:            req.Name,
		Note:            req.Note,
		Tags:            req.Tags,
	}
	if err := s.store.Insert(ctx, job); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "insert job", err.Error(), err)
	}
	s.hub.Open(job.ID)
	s.queued = append(s.queued, job.ID)
	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("source", job.Source.Label()),
		logging.Int("position", job.QueuePosition))

	s.promoteLocked()
	return job, nil
}

// Reorder replaces the queued order. The supplied ids must be exactly the set
// of currently queued jobs.
func (s *Scheduler) Reorder(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !sameIDSet(ids, s.queued) {
		return services.Wrap(services.ErrValidation, "", "",
			"reorder must list every queued job exactly once", nil)
	}
	if err := s.store.SetQueuePositions(ctx, ids); err != nil {
		return services.Wrap(services.ErrPersistence, "", "set positions", err.Error(), err)
	}
	s.queued = append(s.queued[:0], ids...)
	s.logger.Info("queue reordered", logging.Int("queued", len(ids)))
	return nil
}

// UpdateCapacity changes the concurrency settings and persists them. Running
// jobs are never preempted; a lowered limit takes effect as slots drain.
func (s *Scheduler) UpdateCapacity(ctx context.Context, parallelEnabled bool, maxConcurrent int) (queue.RuntimeSettings, error) {
	settings := queue.RuntimeSettings{
		ParallelEnabled: parallelEnabled,
		MaxConcurrent:   clampConcurrent(maxConcurrent),
	}
	if err := s.store.SaveRuntimeSettings(ctx, settings); err != nil {
		return queue.RuntimeSettings{}, services.Wrap(services.ErrPersistence, "", "save settings", err.Error(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.parallelEnabled = settings.ParallelEnabled
	s.maxConcurrent = settings.MaxConcurrent
	s.logger.Info("capacity updated",
		logging.Bool("parallel", settings.ParallelEnabled),
		logging.Int("max_concurrent", settings.MaxConcurrent))
	s.promoteLocked()
	return settings, nil
}

// Settings returns the effective concurrency settings.
func (s *Scheduler) Settings() queue.RuntimeSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queue.RuntimeSettings{
		ParallelEnabled: s.parallelEnabled,
		MaxConcurrent:   s.maxConcurrent,
	}
}

// ResumeSpeakers validates a speaker configuration payload against the tags
// detected for the job and, when valid, releases the parked run. Invalid
// payloads are rejected without touching the waiting state.
func (s *Scheduler) ResumeSpeakers(ctx context.Context, jobID string, payload []byte) error {
	s.mu.Lock()
	rt, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok || rt.deleted {
		job, err := s.store.GetByID(ctx, jobID)
		if err != nil {
			return services.Wrap(services.ErrPersistence, "", "load job", err.Error(), err)
		}
		if job == nil {
			return services.Wrap(services.ErrNotFound, "", "", "job not found", nil)
		}
		return services.Wrap(services.ErrValidation, "", "", "job is not waiting for speaker input", nil)
	}
	if !rt.session.Waiting() {
		return services.Wrap(services.ErrValidation, "", "", "job is not waiting for speaker input", nil)
	}

	configs, err := speaker.DecodePayload(payload)
	if err != nil {
		return err
	}
	stored, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "load job", err.Error(), err)
	}
	if stored == nil {
		return services.Wrap(services.ErrNotFound, "", "", "job not found", nil)
	}
	if err := speaker.Validate(configs, stored.SpeakerTags); err != nil {
		return err
	}

	if !rt.session.TryResume(configs) {
		return services.Wrap(services.ErrValidation, "", "", "job is not waiting for speaker input", nil)
	}
	s.logger.Info("speaker input accepted",
		logging.String(logging.FieldJobID, jobID),
		logging.Int("speakers", len(configs)))
	return nil
}

// Delete removes a job. Queued jobs leave the queue immediately. A running
// job's record is removed and its executor detached; the concurrency slot is
// freed only when the executor finishes. Parked runs are released so they do
// not wait forever for input that can no longer arrive.
func (s *Scheduler) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range s.queued {
		if id != jobID {
			continue
		}
		if _, err := s.store.Remove(ctx, jobID); err != nil {
			return services.Wrap(services.ErrPersistence, "", "remove job", err.Error(), err)
		}
		s.queued = append(s.queued[:i], s.queued[i+1:]...)
		s.hub.Drop(jobID)
		if err := s.store.SetQueuePositions(ctx, s.queued); err != nil {
			s.logger.Error("reassign positions", logging.Error(err))
		}
		s.logger.Info("queued job deleted", logging.String(logging.FieldJobID, jobID))
		return nil
	}

	if rt, ok := s.running[jobID]; ok && !rt.deleted {
		rt.deleted = true
		rt.session.Detach()
		if _, err := s.store.Remove(ctx, jobID); err != nil {
			return services.Wrap(services.ErrPersistence, "", "remove job", err.Error(), err)
		}
		s.hub.Drop(jobID)
		if rt.session.Waiting() {
			rt.cancel()
		}
		s.logger.Info("running job deleted", logging.String(logging.FieldJobID, jobID))
		return nil
	}

	removed, err := s.store.Remove(ctx, jobID)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "remove job", err.Error(), err)
	}
	if !removed {
		return services.Wrap(services.ErrNotFound, "", "", "job not found", nil)
	}
	s.hub.Drop(jobID)
	return nil
}

// promoteLocked fills free slots from the head of the queue. Callers must hold
// s.mu.
func (s *Scheduler) promoteLocked() {
	if !s.started || s.closed {
		return
	}
	limit := 1
	if s.parallelEnabled {
		limit = s.maxConcurrent
	}

	promoted := false
	for len(s.queued) > 0 && len(s.running) < limit {
		jobID := s.queued[0]
		s.queued = s.queued[1:]
		promoted = true

		job, err := s.store.GetByID(s.baseCtx, jobID)
		if err != nil || job == nil {
			if err != nil {
				s.logger.Error("load queued job", logging.String(logging.FieldJobID, jobID), logging.Error(err))
			}
			continue
		}

		job.SetRunning()
		if err := s.store.Update(s.baseCtx, job); err != nil {
			s.logger.Error("persist promotion", logging.String(logging.FieldJobID, jobID), logging.Error(err))
			job.SetFailed(services.Details(err).Message)
			if uerr := s.store.Update(s.baseCtx, job); uerr != nil {
				s.logger.Error("persist promotion failure", logging.String(logging.FieldJobID, jobID), logging.Error(uerr))
			}
			s.hub.Finish(jobID)
			continue
		}

		runCtx, cancel := context.WithCancel(s.baseCtx)
		rt := &runtime{job: job, session: pipeline.NewSession(), cancel: cancel}
		s.running[jobID] = rt
		s.wg.Add(1)
		go s.runJob(runCtx, rt)
		s.logger.Info("job promoted", logging.String(logging.FieldJobID, jobID))
	}

	if promoted && len(s.queued) > 0 {
		if err := s.store.SetQueuePositions(s.baseCtx, s.queued); err != nil {
			s.logger.Error("reassign positions", logging.Error(err))
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, rt *runtime) {
	defer s.wg.Done()
	if err := s.exec.Run(ctx, rt.job, rt.session); err != nil {
		s.logger.Warn("run ended with failure",
			logging.String(logging.FieldJobID, rt.job.ID),
			logging.Error(err))
	}

	s.mu.Lock()
	delete(s.running, rt.job.ID)
	rt.cancel()
	s.promoteLocked()
	s.mu.Unlock()
}

func validateRequest(req *SubmitRequest, cfg *config.Config) error {
	switch req.Source.Count() {
	case 0:
		return services.Wrap(services.ErrValidation, "", "",
			"a source is required: youtube_url, audio_url, or audio_path", nil)
	case 1:
	default:
		return services.Wrap(services.ErrValidation, "", "",
			"exactly one source may be set", nil)
	}
	if path := req.Source.AudioPath; path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return services.Wrap(services.ErrValidation, "", "",
				fmt.Sprintf("audio_path %q is not readable", path), nil)
		}
		if info.IsDir() {
			return services.Wrap(services.ErrValidation, "", "",
				fmt.Sprintf("audio_path %q is a directory", path), nil)
		}
	}

	if req.Params.Language == "" {
		req.Params.Language = cfg.Pipeline.DefaultLanguage
	}
	if req.Params.Speed == 0 {
		req.Params.Speed = cfg.Pipeline.DefaultSpeed
	}
	if req.Params.Speed < minSpeed || req.Params.Speed > maxSpeed {
		return services.Wrap(services.ErrValidation, "", "",
			fmt.Sprintf("speed must be between %.2f and %.1f", minSpeed, maxSpeed), nil)
	}
	return nil
}

func clampConcurrent(value int) int {
	if value < 1 {
		return 1
	}
	if value > config.MaxConcurrentLimit {
		return config.MaxConcurrentLimit
	}
	return value
}

func sameIDSet(ids, queued []string) bool {
	if len(ids) != len(queued) {
		return false
	}
	set := make(map[string]struct{}, len(queued))
	for _, id := range queued {
		set[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}
