package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/services/media"
	"dubcast/internal/stage"
)

// AcquireStage obtains the source audio: YouTube extraction, remote download,
// or a copy of a local file.
type AcquireStage struct {
	client *media.Client
}

// NewAcquireStage constructs the acquisition stage.
func NewAcquireStage(client *media.Client) *AcquireStage {
	return &AcquireStage{client: client}
}

func (s *AcquireStage) Step() queue.Step { return queue.StepAcquire }

func (s *AcquireStage) Execute(ctx context.Context, run *stage.Run) (stage.Summary, error) {
	source := run.Job.Source

	var (
		audioPath string
		title     string
		err       error
	)
	switch {
	case strings.TrimSpace(source.YouTubeURL) != "":
		audioPath, title, err = s.client.ExtractYouTubeAudio(ctx, source.YouTubeURL, run.Dir)
		if err != nil {
			return stage.Summary{}, services.Wrap(services.ErrStageFailure, string(queue.StepAcquire), "youtube_extract", err.Error(), nil)
		}
	case strings.TrimSpace(source.AudioURL) != "":
		audioPath, title, err = s.client.FetchAudio(ctx, source.AudioURL, run.Dir)
		if err != nil {
			return stage.Summary{}, services.Wrap(services.ErrStageFailure, string(queue.StepAcquire), "fetch_audio", err.Error(), nil)
		}
	default:
		audioPath, err = copyIntoRun(source.AudioPath, run.Dir)
		if err != nil {
			return stage.Summary{}, services.Wrap(services.ErrStageFailure, string(queue.StepAcquire), "copy", err.Error(), nil)
		}
	}

	run.AudioPath = audioPath
	if title != "" && strings.TrimSpace(run.Job.Name) == "" {
		run.Job.Name = title
	}
	return stage.Summary{Message: "Audio acquired", Detail: filepath.Base(audioPath)}, nil
}

func (s *AcquireStage) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("media", err.Error())
	}
	return stage.Healthy("media")
}

func copyIntoRun(sourcePath, dir string) (string, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open source audio: %w", err)
	}
	defer src.Close()

	target := filepath.Join(dir, filepath.Base(sourcePath))
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create run copy: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copy source audio: %w", err)
	}
	return target, nil
}
