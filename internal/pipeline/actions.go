package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dubcast/internal/artifacts"
	"dubcast/internal/audio"
	"dubcast/internal/config"
	"dubcast/internal/logging"
	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/services/tts"
	"dubcast/internal/speaker"
)

// Actions implements the post-completion operations available on finished
// jobs. Every action requires completed status, may be repeated, and never
// changes the job's status; only the result record gains or replaces artifact
// paths.
type Actions struct {
	cfg       *config.Config
	store     *queue.Store
	tts       *tts.Client
	assembler *audio.Assembler
	uploader  *artifacts.Uploader
	logger    *slog.Logger
}

// ActionsOptions configures an Actions instance.
type ActionsOptions struct {
	Config    *config.Config
	Store     *queue.Store
	TTS       *tts.Client
	Assembler *audio.Assembler
	Uploader  *artifacts.Uploader
	Logger    *slog.Logger
}

// NewActions constructs the post-completion action set.
func NewActions(opts ActionsOptions) *Actions {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Actions{
		cfg:       opts.Config,
		store:     opts.Store,
		tts:       opts.TTS,
		assembler: opts.Assembler,
		uploader:  opts.Uploader,
		logger:    logger,
	}
}

// GenerateSummaryAudio narrates the job's summary text into a standalone
// audio file.
func (a *Actions) GenerateSummaryAudio(ctx context.Context, job *queue.Job) error {
	if err := requireCompleted(job); err != nil {
		return err
	}
	text, err := readArtifact(job.Result.Summary, "summary")
	if err != nil {
		return err
	}

	output := filepath.Join(job.Result.RunDir, "summary_audio.wav")
	path, err := a.tts.Narrate(ctx, text, output, job.Params.Speed)
	if err != nil {
		return services.Wrap(services.ErrStageFailure, "summary-audio", "narrate", err.Error(), nil)
	}

	job.Result.SummaryAudio = path
	a.uploadActionArtifact(ctx, job, "summary_audio.wav", path)
	if err := a.store.Update(ctx, job); err != nil {
		return services.Wrap(services.ErrPersistence, "summary-audio", "update job", err.Error(), err)
	}
	a.logger.Info("summary audio generated", logging.String(logging.FieldJobID, job.ID))
	return nil
}

// MergeFinalAudio concatenates the configured intro assets, the summary audio,
// and the dialogue audio into the final deliverable.
func (a *Actions) MergeFinalAudio(ctx context.Context, job *queue.Job) error {
	if err := requireCompleted(job); err != nil {
		return err
	}
	if job.Result.SummaryAudio == "" {
		return services.Wrap(services.ErrValidation, "merge", "", "summary audio not generated yet", nil)
	}
	if job.Result.DialogueAudio == "" {
		return services.Wrap(services.ErrValidation, "merge", "", "dialogue audio missing from result", nil)
	}

	inputs := make([]string, 0, len(a.cfg.Pipeline.IntroAssets)+2)
	inputs = append(inputs, a.cfg.Pipeline.IntroAssets...)
	inputs = append(inputs, job.Result.SummaryAudio, job.Result.DialogueAudio)

	output := filepath.Join(job.Result.RunDir, "final.wav")
	if err := a.assembler.Concat(ctx, inputs, output); err != nil {
		return services.Wrap(services.ErrStageFailure, "merge", "concat", err.Error(), err)
	}

	job.Result.FinalAudio = output
	if seconds, err := a.assembler.Duration(ctx, output); err != nil {
		a.logger.Warn("probe final audio", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
	} else {
		job.Result.FinalDuration = seconds
	}
	a.uploadActionArtifact(ctx, job, "final.wav", output)
	if err := a.store.Update(ctx, job); err != nil {
		return services.Wrap(services.ErrPersistence, "merge", "update job", err.Error(), err)
	}
	a.logger.Info("final audio merged",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("segments", len(inputs)),
		logging.Float64("duration_seconds", job.Result.FinalDuration))
	return nil
}

// RegenerateAudio re-synthesizes the dialogue audio with a replacement speaker
// configuration. The configs must cover exactly the tags detected during the
// original run.
func (a *Actions) RegenerateAudio(ctx context.Context, job *queue.Job, configs []speaker.Config) error {
	if err := requireCompleted(job); err != nil {
		return err
	}
	if err := speaker.Validate(configs, job.SpeakerTags); err != nil {
		return err
	}
	text, err := readArtifact(job.Result.Polished, "polished dialogue")
	if err != nil {
		return err
	}

	output := filepath.Join(job.Result.RunDir, "dialogue.wav")
	path, err := a.tts.SynthesizeDialogue(ctx, tts.DialogueRequest{
		Text:       text,
		Speakers:   configs,
		Speed:      job.Params.Speed,
		OutputPath: output,
	})
	if err != nil {
		return services.Wrap(services.ErrStageFailure, "regenerate", "clone_voice", err.Error(), nil)
	}

	job.Result.DialogueAudio = path
	// A previously merged file no longer matches the regenerated dialogue.
	job.Result.FinalAudio = ""
	job.Result.FinalDuration = 0
	a.uploadActionArtifact(ctx, job, "dialogue.wav", path)
	if err := a.store.Update(ctx, job); err != nil {
		return services.Wrap(services.ErrPersistence, "regenerate", "update job", err.Error(), err)
	}
	a.logger.Info("dialogue audio regenerated", logging.String(logging.FieldJobID, job.ID), logging.Int("speakers", len(configs)))
	return nil
}

func (a *Actions) uploadActionArtifact(ctx context.Context, job *queue.Job, name, local string) {
	if a.uploader == nil || !a.uploader.Enabled() {
		return
	}
	url, err := a.uploader.Upload(ctx, local, job.ID, name)
	if err != nil {
		a.logger.Warn("artifact upload failed", logging.String("artifact", name), logging.Error(err))
		return
	}
	if job.Result.Uploads == nil {
		job.Result.Uploads = make(map[string]string)
	}
	job.Result.Uploads[name] = url
}

func requireCompleted(job *queue.Job) error {
	if job.Status != queue.StatusCompleted {
		return services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("job is %s; actions require a completed job", job.Status), nil)
	}
	if job.Result == nil || job.Result.RunDir == "" {
		return services.Wrap(services.ErrValidation, "", "", "job has no recorded run directory", nil)
	}
	return nil
}

func readArtifact(path, label string) (string, error) {
	if path == "" {
		return "", services.Wrap(services.ErrValidation, "", "", label+" artifact missing from result", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrPersistence, "", "read artifact", err.Error(), err)
	}
	return string(data), nil
}
