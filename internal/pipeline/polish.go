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

// PolishStage reworks the raw translation into natural spoken dialogue.
type PolishStage struct {
	client *translate.Client
}

func NewPolishStage(client *translate.Client) *PolishStage {
	return &PolishStage{client: client}
}

func (s *PolishStage) Step() queue.Step { return queue.StepPolish }

func (s *PolishStage) Execute(ctx context.Context, run *stage.Run) (stage.Summary, error) {
	text, err := s.client.Polish(ctx, translate.Request{
		Text:     run.Translation,
		Language: run.Job.Params.Language,
		Provider: run.Job.Params.Provider,
		Model:    run.Job.Params.Model,
	})
	if err != nil {
		return stage.Summary{}, services.Wrap(services.ErrStageFailure, string(queue.StepPolish), "polish", err.Error(), nil)
	}
	text = textutil.Normalize(text)

	path := filepath.Join(run.Dir, "polished.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return stage.Summary{}, services.Wrap(services.ErrPersistence, string(queue.StepPolish), "write", err.Error(), err)
	}

	run.Polished = text
	run.PolishedPath = path
	return stage.Summary{Message: "Dialogue polished", Detail: fmt.Sprintf("%d characters", len(text))}, nil
}
