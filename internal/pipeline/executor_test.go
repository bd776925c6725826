package pipeline_test

import (
	"context"
	"testing"
	"time"

	"dubcast/internal/pipeline"
	"dubcast/internal/progress"
	"dubcast/internal/queue"
	"dubcast/internal/services"
	"dubcast/internal/speaker"
	"dubcast/internal/stage"
	"dubcast/internal/testsupport"
)

type fakeStage struct {
	step    queue.Step
	execute func(ctx context.Context, run *stage.Run) (stage.Summary, error)
}

func (f *fakeStage) Step() queue.Step { return f.step }

func (f *fakeStage) Execute(ctx context.Context, run *stage.Run) (stage.Summary, error) {
	if f.execute != nil {
		return f.execute(ctx, run)
	}
	return stage.Summary{Message: string(f.step) + " done"}, nil
}

func passthroughStages(executed *[]queue.Step) []stage.Handler {
	steps := []queue.Step{
		queue.StepAcquire,
		queue.StepTranscribe,
		queue.StepTranslate,
		queue.StepPolish,
		queue.StepSummarize,
		queue.StepSpeakers,
		queue.StepSynthesize,
	}
	handlers := make([]stage.Handler, 0, len(steps))
	for _, step := range steps {
		step := step
		handlers = append(handlers, &fakeStage{
			step: step,
			execute: func(ctx context.Context, run *stage.Run) (stage.Summary, error) {
				if executed != nil {
					*executed = append(*executed, step)
				}
				return stage.Summary{Message: string(step) + " done"}, nil
			},
		})
	}
	return handlers
}

func startRunningJob(t *testing.T, store *queue.Store, hub *progress.Hub, speakerRequired bool) *queue.Job {
	t.Helper()
	job := &queue.Job{
		ID:              "run-test-job",
		Status:          queue.StatusQueued,
		Source:          queue.Source{AudioPath: "/tmp/in.wav"},
		Params:          queue.Params{Language: "Chinese", Speed: 1.0},
		SpeakerRequired: speakerRequired,
	}
	if err := store.Insert(context.Background(), job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	hub.Open(job.ID)
	job.SetRunning()
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	return job
}

func drainUntilDone(t *testing.T, updates <-chan progress.Update) []progress.Update {
	t.Helper()
	var out []progress.Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				t.Fatalf("feed closed before done after %d updates", len(out))
			}
			out = append(out, update)
			if update.Done {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out waiting for done after %d updates", len(out))
		}
	}
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub()

	var executed []queue.Step
	exec := pipeline.New(pipeline.Options{
		Config: cfg,
		Store:  store,
		Hub:    hub,
		Stages: passthroughStages(&executed),
	})

	job := startRunningJob(t, store, hub, false)
	updates, cancel, ok := hub.Subscribe(job.ID)
	if !ok {
		t.Fatal("expected live feed")
	}
	defer cancel()

	if err := exec.Run(context.Background(), job, pipeline.NewSession()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []queue.Step{
		queue.StepAcquire,
		queue.StepTranscribe,
		queue.StepTranslate,
		queue.StepPolish,
		queue.StepSummarize,
		queue.StepSpeakers,
		queue.StepSynthesize,
	}
	if len(executed) != len(want) {
		t.Fatalf("expected %d stages, got %v", len(want), executed)
	}
	for i := range want {
		if executed[i] != want[i] {
			t.Fatalf("expected stage order %v, got %v", want, executed)
		}
	}

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if final.FinishedAt == nil {
		t.Fatal("expected FinishedAt set")
	}

	all := drainUntilDone(t, updates)
	// Every stage publishes a running then a completed event.
	if len(all) != len(want)*2+1 {
		t.Fatalf("expected %d updates, got %d", len(want)*2+1, len(all))
	}

	steps, err := store.Steps(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	if len(steps) != len(want) {
		t.Fatalf("expected %d persisted steps, got %d", len(want), len(steps))
	}
	for _, step := range steps {
		if step.Status != queue.StepCompleted {
			t.Fatalf("expected all steps completed, got %s=%s", step.Step, step.Status)
		}
	}
}

func TestRunFailsFastWithVerbatimMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub()

	var executed []queue.Step
	stages := passthroughStages(&executed)
	stages[1] = &fakeStage{
		step: queue.StepTranscribe,
		execute: func(ctx context.Context, run *stage.Run) (stage.Summary, error) {
			return stage.Summary{}, services.Wrap(services.ErrStageFailure, "transcribe", "transcribe", "acquisition timeout", nil)
		},
	}

	exec := pipeline.New(pipeline.Options{Config: cfg, Store: store, Hub: hub, Stages: stages})
	job := startRunningJob(t, store, hub, false)
	updates, cancel, ok := hub.Subscribe(job.ID)
	if !ok {
		t.Fatal("expected live feed")
	}
	defer cancel()

	if err := exec.Run(context.Background(), job, pipeline.NewSession()); err == nil {
		t.Fatal("expected Run to surface the stage failure")
	}

	// Only acquire ran to completion before the failure.
	if len(executed) != 1 || executed[0] != queue.StepAcquire {
		t.Fatalf("expected fail-fast after acquire, executed %v", executed)
	}

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorMessage != "acquisition timeout" {
		t.Fatalf("expected verbatim collaborator message, got %q", final.ErrorMessage)
	}

	all := drainUntilDone(t, updates)
	last := all[len(all)-2]
	if last.Event.Step != queue.StepTranscribe || last.Event.Status != queue.StepFailed {
		t.Fatalf("expected failed transcribe event before done, got %#v", last.Event)
	}
	if last.Event.Message != "acquisition timeout" {
		t.Fatalf("expected verbatim message in step event, got %q", last.Event.Message)
	}
}

func TestRunSuspendsForSpeakerInputAndResumes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub()

	polished := "[SPEAKER00] Welcome back to the program everyone.\n[SPEAKER01] Glad to be here with you today."
	var synthesized []speaker.Config

	stages := passthroughStages(nil)
	stages[3] = &fakeStage{
		step: queue.StepPolish,
		execute: func(ctx context.Context, run *stage.Run) (stage.Summary, error) {
			run.Polished = polished
			return stage.Summary{Message: "polish done"}, nil
		},
	}
	stages[5] = pipeline.NewSpeakersStage()
	stages[6] = &fakeStage{
		step: queue.StepSynthesize,
		execute: func(ctx context.Context, run *stage.Run) (stage.Summary, error) {
			synthesized = run.SpeakerConfigs
			return stage.Summary{Message: "synthesize done"}, nil
		},
	}

	exec := pipeline.New(pipeline.Options{Config: cfg, Store: store, Hub: hub, Stages: stages})
	job := startRunningJob(t, store, hub, true)
	session := pipeline.NewSession()

	runErr := make(chan error, 1)
	go func() {
		runErr <- exec.Run(context.Background(), job, session)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !session.Waiting() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for suspension")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Detected tags are persisted before the run parks.
	parked, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(parked.SpeakerTags) != 2 || parked.SpeakerTags[0] != "SPEAKER00" {
		t.Fatalf("expected detected tags persisted, got %v", parked.SpeakerTags)
	}
	steps, err := store.Steps(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	// The waiting entry must be the only active one; a parked run holds no
	// step in running alongside it.
	var active []queue.StepEvent
	for _, step := range steps {
		if step.Status == queue.StepRunning || step.Status == queue.StepWaiting {
			active = append(active, step)
		}
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly one active step while parked, got %#v", active)
	}
	if active[0].Step != queue.StepSpeakerInput || active[0].Status != queue.StepWaiting {
		t.Fatalf("expected waiting speaker-input entry, got %s=%s", active[0].Step, active[0].Status)
	}

	configs := []speaker.Config{
		{Tag: "SPEAKER00", RefText: "Welcome back", Instruction: "Warm host", Language: "Chinese"},
		{Tag: "SPEAKER01", RefText: "Glad to be here", Instruction: "Relaxed guest", Language: "Chinese"},
	}
	if !session.TryResume(configs) {
		t.Fatal("expected resume to be accepted while waiting")
	}
	if session.TryResume(configs) {
		t.Fatal("expected second resume to be rejected")
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run to finish")
	}

	if len(synthesized) != 2 || synthesized[0].Instruction != "Warm host" {
		t.Fatalf("expected supplied configs used for synthesis, got %#v", synthesized)
	}

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if !final.SpeakerSubmitted {
		t.Fatal("expected speaker submission recorded")
	}

	steps, err = store.Steps(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	byStep := make(map[queue.Step]queue.StepStatus, len(steps))
	for _, step := range steps {
		byStep[step.Step] = step.Status
	}
	if byStep[queue.StepSpeakerInput] != queue.StepCompleted {
		t.Fatalf("expected speaker-input completed, got %s", byStep[queue.StepSpeakerInput])
	}
	if byStep[queue.StepSpeakers] != queue.StepCompleted {
		t.Fatalf("expected speakers completed, got %s", byStep[queue.StepSpeakers])
	}
	if byStep[queue.StepSynthesize] != queue.StepCompleted {
		t.Fatalf("expected synthesize completed, got %s", byStep[queue.StepSynthesize])
	}
}

func TestRunCancelledWhileWaitingFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub()

	stages := passthroughStages(nil)
	stages[3] = &fakeStage{
		step: queue.StepPolish,
		execute: func(ctx context.Context, run *stage.Run) (stage.Summary, error) {
			run.Polished = "[SPEAKER00] A single voice carries this entire program."
			return stage.Summary{}, nil
		},
	}

	exec := pipeline.New(pipeline.Options{Config: cfg, Store: store, Hub: hub, Stages: stages})
	job := startRunningJob(t, store, hub, true)
	session := pipeline.NewSession()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- exec.Run(ctx, job, session)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !session.Waiting() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for suspension")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-runErr:
		if err == nil {
			t.Fatal("expected cancellation to end the run with an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancelled run to finish")
	}

	final, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if final.Status != queue.StatusFailed {
		t.Fatalf("expected failed after cancellation, got %s", final.Status)
	}
}
