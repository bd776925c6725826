package stage

import (
	"dubcast/internal/queue"
	"dubcast/internal/speaker"
)

// Run accumulates the state a job carries through the stage sequence. Each
// stage consumes the fields its predecessors filled in and records both the
// artifact path and, for text artifacts, the content itself so later stages
// avoid re-reading files.
type Run struct {
	Job *queue.Job
	// Dir is the per-job working directory under runs_dir.
	Dir string

	AudioPath string

	TranscriptPath string
	Transcript     string

	TranslationPath string
	Translation     string

	PolishedPath string
	Polished     string

	SummaryPath string
	Summary     string

	SpeakersPath   string
	SpeakerConfigs []speaker.Config

	DialoguePath string
}

// ApplyResult copies artifact locations onto the job's result record.
func (r *Run) ApplyResult() {
	if r.Job == nil {
		return
	}
	if r.Job.Result == nil {
		r.Job.Result = &queue.Result{}
	}
	result := r.Job.Result
	result.RunDir = r.Dir
	result.AudioFile = r.AudioPath
	result.Transcript = r.TranscriptPath
	result.Translation = r.TranslationPath
	result.Polished = r.PolishedPath
	result.Summary = r.SummaryPath
	result.SpeakersFile = r.SpeakersPath
	result.DialogueAudio = r.DialoguePath
}
