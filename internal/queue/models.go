package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a pipeline job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RestartInterruptReason is the error message recorded for jobs that were
// queued or running when the daemon went down.
const RestartInterruptReason = "interrupted by restart before completion"

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status ends a job's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step identifies one entry in the per-job step log.
type Step string

const (
	StepAcquire      Step = "acquire"
	StepTranscribe   Step = "transcribe"
	StepTranslate    Step = "translate"
	StepPolish       Step = "polish"
	StepSummarize    Step = "summarize"
	StepSpeakers     Step = "speakers"
	StepSpeakerInput Step = "speaker-input"
	StepSynthesize   Step = "synthesize"
)

var stepOrder = []Step{
	StepAcquire,
	StepTranscribe,
	StepTranslate,
	StepPolish,
	StepSummarize,
	StepSpeakers,
	StepSpeakerInput,
	StepSynthesize,
}

// StepOrder returns the canonical presentation order for step log entries.
// The speaker-input pseudo-step sits between profile derivation and synthesis,
// matching where the run suspends.
func StepOrder() []Step {
	cp := make([]Step, len(stepOrder))
	copy(cp, stepOrder)
	return cp
}

// StepIndex returns the canonical position of a step, or len(StepOrder()) for
// unknown keys so they sort last.
func StepIndex(step Step) int {
	for i, s := range stepOrder {
		if s == step {
			return i
		}
	}
	return len(stepOrder)
}

// StepStatus represents the state of a single step log entry.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepWaiting   StepStatus = "waiting"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// IsActive reports whether the step status occupies the single in-flight slot.
func (s StepStatus) IsActive() bool {
	return s == StepRunning || s == StepWaiting
}

// StepEvent is one upserted entry in a job's step log.
type StepEvent struct {
	Step      Step       `json:"step"`
	Status    StepStatus `json:"status"`
	Message   string     `json:"message"`
	Detail    string     `json:"detail,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Source identifies where a job's input audio comes from. Exactly one field
// must be set.
type Source struct {
	YouTubeURL string `json:"youtube_url,omitempty"`
	AudioURL   string `json:"audio_url,omitempty"`
	AudioPath  string `json:"audio_path,omitempty"`
}

// Count returns how many source fields are populated.
func (s Source) Count() int {
	n := 0
	if strings.TrimSpace(s.YouTubeURL) != "" {
		n++
	}
	if strings.TrimSpace(s.AudioURL) != "" {
		n++
	}
	if strings.TrimSpace(s.AudioPath) != "" {
		n++
	}
	return n
}

// Label returns a short description of the populated source for logging.
func (s Source) Label() string {
	switch {
	case strings.TrimSpace(s.YouTubeURL) != "":
		return "youtube"
	case strings.TrimSpace(s.AudioURL) != "":
		return "audio_url"
	case strings.TrimSpace(s.AudioPath) != "":
		return "audio_path"
	default:
		return "none"
	}
}

// Params carries the caller-supplied knobs forwarded to collaborator services.
type Params struct {
	Provider string  `json:"provider,omitempty"`
	Model    string  `json:"model,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// Result records artifact locations produced by a finished run.
type Result struct {
	RunDir        string            `json:"run_dir,omitempty"`
	AudioFile     string            `json:"audio_file,omitempty"`
	Transcript    string            `json:"transcript,omitempty"`
	Translation   string            `json:"translation,omitempty"`
	Polished      string            `json:"polished,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	SpeakersFile  string            `json:"speakers_file,omitempty"`
	DialogueAudio string            `json:"dialogue_audio,omitempty"`
	SummaryAudio  string            `json:"summary_audio,omitempty"`
	FinalAudio    string            `json:"final_audio,omitempty"`
	FinalDuration float64           `json:"final_duration_seconds,omitempty"`
	Uploads       map[string]string `json:"uploads,omitempty"`
}

// Job represents a pipeline job persisted in SQLite.
type Job struct {
	ID               string
	Status           Status
	CreatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
	ErrorMessage     string
	Source           Source
	Params           Params
	SpeakerRequired  bool
	SpeakerSubmitted bool
	SpeakerTags      []string
	QueuePosition    int
	Result           *Result
	Name             string
	Note             string
	Tags             []string
	Published        bool
}

// SetFailed marks the job failed with the given error message.
func (j *Job) SetFailed(message string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.FinishedAt = &now
	j.QueuePosition = -1
}

// SetRunning marks the job as promoted into a concurrency slot.
func (j *Job) SetRunning() {
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.ErrorMessage = ""
	j.QueuePosition = -1
}

// SetCompleted marks the job finished successfully.
func (j *Job) SetCompleted() {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.FinishedAt = &now
	j.ErrorMessage = ""
}

// DisplayName returns the user-assigned name when present, falling back to
// the source label.
func (j *Job) DisplayName() string {
	if name := strings.TrimSpace(j.Name); name != "" {
		return name
	}
	return j.Source.Label()
}
