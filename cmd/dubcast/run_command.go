package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dubcast/internal/api"
	"dubcast/internal/daemon"
	"dubcast/internal/logging"
	"dubcast/internal/queue"
)

// newRunCommand executes a single job end to end: it starts an embedded
// daemon, submits the job, prints step progress, and exits with the job's
// outcome.
func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		youtubeURL string
		audioURL   string
		audioPath  string
		provider   string
		model      string
		language   string
		speed      float64
		name       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a single source to dubbed audio and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      "console",
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Start(signalCtx); err != nil {
				return err
			}

			client := newAPIClient(cfg.Paths.APIBind)
			job, err := client.submit(signalCtx, api.SubmitPayload{
				YouTubeURL: youtubeURL,
				AudioURL:   audioURL,
				AudioPath:  audioPath,
				Provider:   provider,
				Model:      model,
				Language:   language,
				Speed:      speed,
				Name:       name,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s submitted\n", job.ID)

			err = client.stream(signalCtx, job.ID, func(event queue.StepEvent) {
				line := fmt.Sprintf("%-13s %-10s %s", event.Step, event.Status, event.Message)
				if event.Detail != "" {
					line += " (" + event.Detail + ")"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			final, err := client.get(signalCtx, job.ID)
			if err != nil {
				return err
			}
			if final.Job.Status != queue.StatusCompleted {
				if final.Job.Error != "" {
					return fmt.Errorf("job %s: %s", final.Job.Status, final.Job.Error)
				}
				return fmt.Errorf("job ended with status %s", final.Job.Status)
			}
			if final.Job.Result != nil && final.Job.Result.DialogueAudio != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "dialogue audio: %s\n", final.Job.Result.DialogueAudio)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&youtubeURL, "youtube", "", "YouTube URL to dub")
	cmd.Flags().StringVar(&audioURL, "audio-url", "", "Remote audio URL to dub")
	cmd.Flags().StringVar(&audioPath, "file", "", "Local audio file to dub")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider override")
	cmd.Flags().StringVar(&model, "model", "", "Model override")
	cmd.Flags().StringVar(&language, "language", "", "Target language")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Narration speed multiplier")
	cmd.Flags().StringVar(&name, "name", "", "Display name for the job")

	return cmd
}
