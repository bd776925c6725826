// Package daemon assembles the store, scheduler, pipeline, and HTTP server
// into a single lifecycle with flock-based locking to prevent multiple
// concurrent instances.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"dubcast/internal/api"
	"dubcast/internal/artifacts"
	"dubcast/internal/audio"
	"dubcast/internal/config"
	"dubcast/internal/logging"
	"dubcast/internal/pipeline"
	"dubcast/internal/progress"
	"dubcast/internal/queue"
	"dubcast/internal/scheduler"
	"dubcast/internal/services/asr"
	"dubcast/internal/services/media"
	"dubcast/internal/services/toolapi"
	"dubcast/internal/services/translate"
	"dubcast/internal/services/tts"
	"dubcast/internal/stage"
)

// Daemon owns the long-running pieces of the service.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	hub    *progress.Hub
	sched  *scheduler.Scheduler
	server *api.Server

	lockPath string
	lock     *flock.Flock

	httpServer *http.Server
	listener   net.Listener

	running atomic.Bool
	cancel  context.CancelFunc
}

// New wires a daemon from configuration. The store is opened immediately;
// nothing starts running until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	hub := progress.NewHub()

	mediaClient := media.NewClient(toolClientConfig("media", cfg.Services.Media))
	asrClient := asr.NewClient(toolClientConfig("asr", cfg.Services.ASR))
	translateClient := translate.NewClient(toolClientConfig("translate", cfg.Services.Translate))
	ttsClient := tts.NewClient(toolClientConfig("tts", cfg.Services.TTS))

	uploader, err := artifacts.NewUploader(cfg.Storage)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("configure uploader: %w", err)
	}

	acquire := pipeline.NewAcquireStage(mediaClient)
	transcribe := pipeline.NewTranscribeStage(asrClient)
	translateStage := pipeline.NewTranslateStage(translateClient)
	synthesize := pipeline.NewSynthesizeStage(ttsClient)

	executor := pipeline.New(pipeline.Options{
		Config: cfg,
		Store:  store,
		Hub:    hub,
		Stages: pipeline.Stages(
			acquire,
			transcribe,
			translateStage,
			pipeline.NewPolishStage(translateClient),
			pipeline.NewSummarizeStage(translateClient),
			pipeline.NewSpeakersStage(),
			synthesize,
		),
		Uploader: uploader,
		Logger:   logging.NewComponentLogger(logger, "pipeline"),
	})

	sched := scheduler.New(scheduler.Options{
		Config:   cfg,
		Store:    store,
		Hub:      hub,
		Executor: executor,
		Logger:   logging.NewComponentLogger(logger, "scheduler"),
	})

	actions := pipeline.NewActions(pipeline.ActionsOptions{
		Config:    cfg,
		Store:     store,
		TTS:       ttsClient,
		Assembler: audio.NewAssembler(cfg.FFmpegBinary()),
		Uploader:  uploader,
		Logger:    logging.NewComponentLogger(logger, "actions"),
	})

	server := api.NewServer(api.Options{
		Config:    cfg,
		Store:     store,
		Scheduler: sched,
		Actions:   actions,
		Hub:       hub,
		Health:    []stage.HealthChecker{acquire, transcribe, translateStage, synthesize},
		Logger:    logger,
	})

	lockPath := filepath.Join(cfg.Paths.DataDir, "dubcast.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		hub:      hub,
		sched:    sched,
		server:   server,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

func toolClientConfig(name string, svc config.Service) toolapi.Config {
	return toolapi.Config{
		Name:           name,
		BaseURL:        svc.BaseURL,
		TimeoutSeconds: svc.TimeoutSeconds,
	}
}

// Start acquires the instance lock, performs restart recovery, and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dubcast instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.sched.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}

	listener, err := net.Listen("tcp", d.cfg.Paths.APIBind)
	if err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("api listen: %w", err)
	}
	d.listener = listener
	d.httpServer = &http.Server{
		Handler:           d.server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := d.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("api server error", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", d.lockPath),
		logging.String("db", d.store.Path()))
	return nil
}

// Stop shuts down the API server, drains the scheduler, and releases the
// instance lock.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	if d.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = d.httpServer.Shutdown(shutdownCtx)
		cancel()
		d.httpServer = nil
	}
	if d.listener != nil {
		_ = d.listener.Close()
		d.listener = nil
	}

	if err := d.sched.Stop(ctx); err != nil {
		d.logger.Warn("scheduler drain incomplete", logging.Error(err))
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d.Stop(ctx)
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Router exposes the HTTP handler, used by tests and the one-shot runner.
func (d *Daemon) Router() http.Handler {
	return d.server.Router()
}

// Wait blocks until ctx is cancelled, then performs an orderly shutdown.
func (d *Daemon) Wait(ctx context.Context) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d.Stop(shutdownCtx)
}
