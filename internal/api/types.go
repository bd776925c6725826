package api

import (
	"time"

	"dubcast/internal/queue"
	"dubcast/internal/speaker"
)

// SubmitPayload is the request body for POST /api/jobs.
type SubmitPayload struct {
	YouTubeURL      string   `json:"youtube_url,omitempty"`
	AudioURL        string   `json:"audio_url,omitempty"`
	AudioPath       string   `json:"audio_path,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	Model           string   `json:"model,omitempty"`
	Language        string   `json:"language,omitempty"`
	Speed           float64  `json:"speed,omitempty"`
	SpeakerRequired bool     `json:"speaker_required,omitempty"`
	Name            string   `json:"name,omitempty"`
	Note            string   `json:"note,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// JobView is the wire representation of a job.
type JobView struct {
	ID               string        `json:"id"`
	Status           queue.Status  `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	Error            string        `json:"error,omitempty"`
	Source           queue.Source  `json:"source"`
	Params           queue.Params  `json:"params"`
	SpeakerRequired  bool          `json:"speaker_required"`
	SpeakerSubmitted bool          `json:"speaker_submitted"`
	SpeakerTags      []string      `json:"speaker_tags,omitempty"`
	QueuePosition    *int          `json:"queue_position,omitempty"`
	Result           *queue.Result `json:"result,omitempty"`
	Name             string        `json:"name,omitempty"`
	Note             string        `json:"note,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	Published        bool          `json:"published"`
}

// StepView is the wire representation of one step log entry.
type StepView struct {
	Step      queue.Step       `json:"step"`
	Status    queue.StepStatus `json:"status"`
	Message   string           `json:"message"`
	Detail    string           `json:"detail,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// JobResponse wraps a single job, optionally with its step log.
type JobResponse struct {
	Job   JobView    `json:"job"`
	Steps []StepView `json:"steps,omitempty"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// MetadataPatch carries editable job metadata. Nil fields are left unchanged.
type MetadataPatch struct {
	Name      *string   `json:"name,omitempty"`
	Note      *string   `json:"note,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Published *bool     `json:"published,omitempty"`
}

// ReorderPayload lists the new queued order.
type ReorderPayload struct {
	IDs []string `json:"ids"`
}

// SettingsView is the wire representation of runtime capacity settings.
type SettingsView struct {
	ParallelEnabled bool `json:"parallel_enabled"`
	MaxConcurrent   int  `json:"max_concurrent"`
	MaxQueue        int  `json:"max_queue"`
}

// SettingsPatch carries capacity updates. Nil fields keep their current value.
type SettingsPatch struct {
	ParallelEnabled *bool `json:"parallel_enabled,omitempty"`
	MaxConcurrent   *int  `json:"max_concurrent,omitempty"`
}

// RegeneratePayload carries replacement speaker configuration for the
// regenerate action.
type RegeneratePayload struct {
	Speakers []speaker.Config `json:"speakers"`
}

// HealthResponse reports daemon and collaborator readiness.
type HealthResponse struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth reports one collaborator's readiness.
type ServiceHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func fromJob(job *queue.Job) JobView {
	view := JobView{
		ID:               job.ID,
		Status:           job.Status,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		FinishedAt:       job.FinishedAt,
		Error:            job.ErrorMessage,
		Source:           job.Source,
		Params:           job.Params,
		SpeakerRequired:  job.SpeakerRequired,
		SpeakerSubmitted: job.SpeakerSubmitted,
		SpeakerTags:      job.SpeakerTags,
		Result:           job.Result,
		Name:             job.Name,
		Note:             job.Note,
		Tags:             job.Tags,
		Published:        job.Published,
	}
	if job.Status == queue.StatusQueued && job.QueuePosition >= 0 {
		position := job.QueuePosition
		view.QueuePosition = &position
	}
	return view
}

func fromSteps(events []queue.StepEvent) []StepView {
	if len(events) == 0 {
		return nil
	}
	views := make([]StepView, 0, len(events))
	for _, event := range events {
		views = append(views, StepView{
			Step:      event.Step,
			Status:    event.Status,
			Message:   event.Message,
			Detail:    event.Detail,
			Timestamp: event.Timestamp,
		})
	}
	return views
}
