package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/services/translate"
	"dubcast/internal/stage"
	"dubcast/internal/textutil"
)

// SummarizeStage produces a short spoken summary of the polished dialogue.
type SummarizeStage struct {
	client *translate.Client
}

func NewSummarizeStage(client *translate.Client) *SummarizeStage {
	return &SummarizeStage{client: client}
}

func (s *SummarizeStage) Step() queue.Step { return queue.StepSummarize }

func (s *SummarizeStage) Execute(ctx context.Context, run *stage.Run) (stage.Summary, error) {
	text, err := s.client.Summarize(ctx, translate.Request{
		Text:     run.Polished,
		Language: run.Job.Params.Language,
		Provider: run.Job.Params.Provider,
		Model:    run.Job.Params.Model,
	})
	if err != nil {
		return stage.Summary{}, services.Wrap(services.ErrStageFailure, string(queue.StepSummarize), "summarize", err.Error(), nil)
	}
	text = textutil.Normalize(text)

	path := filepath.Join(run.Dir, "summary.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return stage.Summary{}, services.Wrap(services.ErrPersistence, string(queue.StepSummarize), "write", err.Error(), err)
	}

	run.Summary = text
	run.SummaryPath = path
	return stage.Summary{Message: "Summary ready", Detail: textutil.Trim(text, 80)}, nil
}
