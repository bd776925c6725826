package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/services/asr"
	"dubcast/internal/stage"
)

// TranscribeStage converts the acquired audio into a source-language
// transcript.
type TranscribeStage struct {
	client *asr.Client
}

func NewTranscribeStage(client *asr.Client) *TranscribeStage {
	return &TranscribeStage{client: client}
}

func (s *TranscribeStage) Step() queue.Step { return queue.StepTranscribe }

func (s *TranscribeStage) Execute(ctx context.Context, run *stage.Run) (stage.Summary, error) {
	text, err := s.client.Transcribe(ctx, run.AudioPath, run.Job.Params.Model)
	if err != nil {
		return stage.Summary{}, services.Wrap(services.ErrStageFailure, string(queue.StepTranscribe), "transcribe", err.Error(), nil)
	}

	path := filepath.Join(run.Dir, "transcript.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return stage.Summary{}, services.Wrap(services.ErrPersistence, string(queue.StepTranscribe), "write", err.Error(), err)
	}

	run.Transcript = text
	run.TranscriptPath = path
	return stage.Summary{Message: "Transcript ready", Detail: fmt.Sprintf("%d characters", len(text))}, nil
}

func (s *TranscribeStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("asr", err.Error())
	}
	return stage.Healthy("asr")
}
