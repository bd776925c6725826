package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"dubcast/internal/api"
	"dubcast/internal/queue"
	"dubcast/internal/textutil"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilter []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(ctx.apiAddress())
			jobs, err := client.list(cmd.Context(), statusFilter)
			if err != nil {
				return err
			}

			if jsonOutput || !isatty.IsTerminal(os.Stdout.Fd()) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(jobs)
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					shortID(job.ID),
					string(job.Status),
					positionLabel(job),
					textutil.Trim(displayName(job), 40),
					job.CreatedAt.Local().Format(time.DateTime),
					textutil.Trim(job.Error, 50),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Pos", "Name", "Created", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statusFilter, "status", nil, "Filter by status (queued, running, completed, failed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")

	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsDeleteCommand(ctx))
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its step log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(ctx.apiAddress())
			response, err := client.get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !isatty.IsTerminal(os.Stdout.Fd()) {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(response)
			}

			job := response.Job
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job      %s\n", job.ID)
			fmt.Fprintf(out, "Status   %s\n", job.Status)
			fmt.Fprintf(out, "Name     %s\n", displayName(job))
			if job.Error != "" {
				fmt.Fprintf(out, "Error    %s\n", job.Error)
			}
			if len(response.Steps) == 0 {
				return nil
			}

			rows := make([][]string, 0, len(response.Steps))
			for _, step := range response.Steps {
				rows = append(rows, []string{
					string(step.Step),
					string(step.Status),
					step.Message,
					textutil.Trim(step.Detail, 40),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Step", "Status", "Message", "Detail"},
				rows,
				nil,
			))
			return nil
		},
	}
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(ctx.apiAddress())
			if err := client.delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func displayName(job api.JobView) string {
	if name := strings.TrimSpace(job.Name); name != "" {
		return name
	}
	switch {
	case job.Source.YouTubeURL != "":
		return job.Source.YouTubeURL
	case job.Source.AudioURL != "":
		return job.Source.AudioURL
	default:
		return job.Source.AudioPath
	}
}

func positionLabel(job api.JobView) string {
	if job.Status != queue.StatusQueued || job.QueuePosition == nil {
		return ""
	}
	return fmt.Sprintf("%d", *job.QueuePosition)
}
