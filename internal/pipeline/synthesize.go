package pipeline

import (
	"context"
	"path/filepath"

	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/services/tts"
	"dubcast/internal/stage"
)

// SynthesizeStage turns the polished dialogue into narrated audio using the
// configured speaker voices.
type SynthesizeStage struct {
	client *tts.Client
}

func NewSynthesizeStage(client *tts.Client) *SynthesizeStage {
	return &SynthesizeStage{client: client}
}

func (s *SynthesizeStage) Step() queue.Step { return queue.StepSynthesize }

func (s *SynthesizeStage) Execute(ctx context.Context, run *stage.Run) (stage.Summary, error) {
	output := filepath.Join(run.Dir, "dialogue.wav")
	path, err := s.client.SynthesizeDialogue(ctx, tts.DialogueRequest{
		Text:       run.Polished,
		Speakers:   run.SpeakerConfigs,
		Speed:      run.Job.Params.Speed,
		OutputPath: output,
	})
	if err != nil {
		return stage.Summary{}, services.Wrap(services.ErrStageFailure, string(queue.StepSynthesize), "clone_voice", err.Error(), nil)
	}

	run.DialoguePath = path
	return stage.Summary{Message: "Dialogue audio synthesized", Detail: filepath.Base(path)}, nil
}

func (s *SynthesizeStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("tts", err.Error())
	}
	return stage.Healthy("tts")
}
