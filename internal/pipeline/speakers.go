package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/speaker"
	"dubcast/internal/stage"
)

// SpeakersStage derives default voice profiles for the speaker tags found in
// the polished dialogue. Jobs that request manual speaker input suspend before
// this stage completes; the supplied configuration is applied through Apply.
type SpeakersStage struct{}

func NewSpeakersStage() *SpeakersStage {
	return &SpeakersStage{}
}

func (s *SpeakersStage) Step() queue.Step { return queue.StepSpeakers }

func (s *SpeakersStage) Execute(ctx context.Context, run *stage.Run) (stage.Summary, error) {
	configs := speaker.Derive(run.Polished, run.Job.Params.Language)
	if err := s.Apply(run, configs); err != nil {
		return stage.Summary{}, err
	}
	return stage.Summary{
		Message: "Speaker profiles derived",
		Detail:  fmt.Sprintf("%d speakers", len(configs)),
	}, nil
}

// Apply records configs on the run and writes speakers.json into the run
// directory.
func (s *SpeakersStage) Apply(run *stage.Run, configs []speaker.Config) error {
	run.SpeakerConfigs = configs

	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrPersistence, string(queue.StepSpeakers), "encode", err.Error(), err)
	}
	path := filepath.Join(run.Dir, "speakers.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrPersistence, string(queue.StepSpeakers), "write", err.Error(), err)
	}
	run.SpeakersPath = path
	return nil
}
