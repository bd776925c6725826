package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/services/translate"
	"dubcast/internal/stage"
	"dubcast/internal/textutil"
)

// TranslateStage renders the transcript into the target language.
type TranslateStage struct {
	client *translate.Client
}

func NewTranslateStage(client *translate.Client) *TranslateStage {
	return &TranslateStage{client: client}
}

func (s *TranslateStage) Step() queue.Step { return queue.StepTranslate }

func (s *TranslateStage) Execute(ctx context.Context, run *stage.Run) (stage.Summary, error) {
	text, err := s.client.Translate(ctx, translate.Request{
		Text:     run.Transcript,
		Language: run.Job.Params.Language,
		Provider: run.Job.Params.Provider,
		Model:    run.Job.Params.Model,
	})
	if err != nil {
		return stage.Summary{}, services.Wrap(services.ErrStageFailure, string(queue.StepTranslate), "translate", err.Error(), nil)
	}
	text = textutil.Normalize(text)

	path := filepath.Join(run.Dir, "translation.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return stage.Summary{}, services.Wrap(services.ErrPersistence, string(queue.StepTranslate), "write", err.Error(), err)
	}

	run.Translation = text
	run.TranslationPath = path
	return stage.Summary{Message: "Translation ready", Detail: fmt.Sprintf("%d characters", len(text))}, nil
}

func (s *TranslateStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("translate", err.Error())
	}
	return stage.Healthy("translate")
}
