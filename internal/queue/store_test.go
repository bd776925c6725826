package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"dubcast/internal/queue"
	"dubcast/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := &queue.Job{
		ID:     "job-1",
		Status: queue.StatusQueued,
		Source: queue.Source{YouTubeURL: "https://youtube.com/watch?v=abc"},
		Params: queue.Params{Language: "Chinese", Speed: 1.0},
	}
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if job.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be assigned")
	}

	fetched, err := store.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Source.YouTubeURL != job.Source.YouTubeURL {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	if fetched.Params.Language != "Chinese" {
		t.Fatalf("expected params to round-trip, got %#v", fetched.Params)
	}
}

func TestGetByIDUnknownReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for unknown job, got %#v", job)
	}
}

func TestUpdatePersistsResultAndTags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "alpha")

	job.SetRunning()
	job.SpeakerTags = []string{"SPEAKER00", "SPEAKER01"}
	job.Result = &queue.Result{RunDir: "/runs/alpha", DialogueAudio: "/runs/alpha/dialogue.wav"}
	job.Tags = []string{"podcast"}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusRunning {
		t.Fatalf("expected running, got %s", fetched.Status)
	}
	if fetched.StartedAt == nil {
		t.Fatal("expected StartedAt to persist")
	}
	if len(fetched.SpeakerTags) != 2 || fetched.SpeakerTags[1] != "SPEAKER01" {
		t.Fatalf("unexpected speaker tags: %v", fetched.SpeakerTags)
	}
	if fetched.Result == nil || fetched.Result.DialogueAudio != "/runs/alpha/dialogue.wav" {
		t.Fatalf("unexpected result: %#v", fetched.Result)
	}
	if len(fetched.Tags) != 1 || fetched.Tags[0] != "podcast" {
		t.Fatalf("unexpected tags: %v", fetched.Tags)
	}
}

func TestUpsertStepDedupesByKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "beta")

	first := queue.StepEvent{
		Step:      queue.StepTranscribe,
		Status:    queue.StepRunning,
		Message:   "Transcribing audio",
		Timestamp: time.Now().UTC(),
	}
	if err := store.UpsertStep(ctx, job.ID, first); err != nil {
		t.Fatalf("UpsertStep failed: %v", err)
	}
	second := first
	second.Status = queue.StepCompleted
	second.Message = "Transcript ready"
	if err := store.UpsertStep(ctx, job.ID, second); err != nil {
		t.Fatalf("UpsertStep update failed: %v", err)
	}

	steps, err := store.Steps(ctx, job.ID)
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected one entry per step key, got %d", len(steps))
	}
	if steps[0].Status != queue.StepCompleted || steps[0].Message != "Transcript ready" {
		t.Fatalf("expected latest state to win: %#v", steps[0])
	}
}

func TestStepsReturnCanonicalOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "gamma")

	// Insert out of order; reads must come back in pipeline order.
	for _, step := range []queue.Step{queue.StepSynthesize, queue.StepAcquire, queue.StepSpeakers} {
		event := queue.StepEvent{
			Step:      step,
			Status:    queue.StepCompleted,
			Message:   string(step),
			Timestamp: time.Now().UTC(),
		}
		if err := store.UpsertStep(ctx, job.ID, event); err != nil {
			t.Fatalf("UpsertStep(%s) failed: %v", step, err)
		}
	}

	steps, err := store.Steps(ctx, job.ID)
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	got := []queue.Step{steps[0].Step, steps[1].Step, steps[2].Step}
	want := []queue.Step{queue.StepAcquire, queue.StepSpeakers, queue.StepSynthesize}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRemoveDeletesJobAndSteps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "delta")
	event := queue.StepEvent{Step: queue.StepAcquire, Status: queue.StepRunning, Message: "x", Timestamp: time.Now().UTC()}
	if err := store.UpsertStep(ctx, job.ID, event); err != nil {
		t.Fatalf("UpsertStep failed: %v", err)
	}

	removed, err := store.Remove(ctx, job.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("expected removal to report true")
	}

	if fetched, _ := store.GetByID(ctx, job.ID); fetched != nil {
		t.Fatal("expected job to be gone")
	}
	steps, err := store.Steps(ctx, job.ID)
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	if len(steps) != 0 {
		t.Fatalf("expected steps to be gone, got %d", len(steps))
	}

	removedAgain, err := store.Remove(ctx, job.ID)
	if err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
	if removedAgain {
		t.Fatal("expected second removal to report false")
	}
}

func TestUpdateMetadataLeavesPipelineFieldsAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "meta")
	stale := *job

	// The pipeline finishes the job after the editor took its snapshot.
	job.SetRunning()
	job.SetCompleted()
	job.SpeakerTags = []string{"SPEAKER00"}
	job.Result = &queue.Result{RunDir: "/runs/meta", DialogueAudio: "/runs/meta/dialogue.wav"}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if err := store.UpdateMetadata(ctx, stale.ID, "renamed", "edited note", []string{"podcast"}, true); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Name != "renamed" || fetched.Note != "edited note" || !fetched.Published {
		t.Fatalf("expected metadata written, got %#v", fetched)
	}
	if len(fetched.Tags) != 1 || fetched.Tags[0] != "podcast" {
		t.Fatalf("expected tags written, got %v", fetched.Tags)
	}
	if fetched.Status != queue.StatusCompleted {
		t.Fatalf("metadata write must not touch status, got %s", fetched.Status)
	}
	if fetched.Result == nil || fetched.Result.DialogueAudio != "/runs/meta/dialogue.wav" {
		t.Fatalf("metadata write must not touch result, got %#v", fetched.Result)
	}
	if len(fetched.SpeakerTags) != 1 {
		t.Fatalf("metadata write must not touch speaker tags, got %v", fetched.SpeakerTags)
	}

	if err := store.UpdateMetadata(ctx, "missing", "x", "", nil, false); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for unknown job, got %v", err)
	}
}

func TestMarkInterruptedFailsRunningJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	queued := testsupport.NewJob(t, store, "queued")
	running := testsupport.NewJob(t, store, "running")
	running.SetRunning()
	if err := store.Update(ctx, running); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	done := testsupport.NewJob(t, store, "done")
	done.SetCompleted()
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.MarkInterrupted(ctx, queue.RestartInterruptReason)
	if err != nil {
		t.Fatalf("MarkInterrupted failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 interrupted job, got %d", count)
	}

	failed, err := store.GetByID(ctx, running.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if failed.Status != queue.StatusFailed {
		t.Fatalf("expected running job failed, got %s", failed.Status)
	}
	if failed.ErrorMessage != queue.RestartInterruptReason {
		t.Fatalf("unexpected error message: %q", failed.ErrorMessage)
	}

	for _, job := range []*queue.Job{queued, done} {
		unchanged, err := store.GetByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if unchanged.Status != job.Status {
			t.Fatalf("expected %s untouched, got %s", job.Status, unchanged.Status)
		}
	}
}

func TestSetQueuePositionsOrdersList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.NewJob(t, store, "a")
	b := testsupport.NewJob(t, store, "b")
	c := testsupport.NewJob(t, store, "c")

	if err := store.SetQueuePositions(ctx, []string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("SetQueuePositions failed: %v", err)
	}

	jobs, err := store.List(ctx, queue.StatusQueued)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	want := []string{c.ID, a.ID, b.ID}
	for i, job := range jobs {
		if job.ID != want[i] {
			t.Fatalf("expected order %v, got %s at %d", want, job.ID, i)
		}
	}
}

func TestRuntimeSettingsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	defaults := queue.RuntimeSettings{ParallelEnabled: false, MaxConcurrent: 1}

	loaded, err := store.LoadRuntimeSettings(ctx, defaults)
	if err != nil {
		t.Fatalf("LoadRuntimeSettings failed: %v", err)
	}
	if loaded != defaults {
		t.Fatalf("expected defaults before save, got %#v", loaded)
	}

	saved := queue.RuntimeSettings{ParallelEnabled: true, MaxConcurrent: 3}
	if err := store.SaveRuntimeSettings(ctx, saved); err != nil {
		t.Fatalf("SaveRuntimeSettings failed: %v", err)
	}

	loaded, err = store.LoadRuntimeSettings(ctx, defaults)
	if err != nil {
		t.Fatalf("LoadRuntimeSettings after save failed: %v", err)
	}
	if loaded != saved {
		t.Fatalf("expected %#v, got %#v", saved, loaded)
	}
}
