package progress_test

import (
	"testing"
	"time"

	"dubcast/internal/progress"
	"dubcast/internal/queue"
)

func event(step queue.Step, status queue.StepStatus) queue.StepEvent {
	return queue.StepEvent{
		Step:      step,
		Status:    status,
		Message:   string(step),
		Timestamp: time.Now().UTC(),
	}
}

func collect(t *testing.T, updates <-chan progress.Update, want int) []progress.Update {
	t.Helper()
	out := make([]progress.Update, 0, want)
	timeout := time.After(2 * time.Second)
	for len(out) < want {
		select {
		case update, ok := <-updates:
			if !ok {
				t.Fatalf("channel closed after %d of %d updates", len(out), want)
			}
			out = append(out, update)
		case <-timeout:
			t.Fatalf("timed out after %d of %d updates", len(out), want)
		}
	}
	return out
}

func TestSubscribeReplaysBacklogThenLive(t *testing.T) {
	hub := progress.NewHub()
	hub.Open("job")

	hub.Publish("job", event(queue.StepTranscribe, queue.StepCompleted))
	hub.Publish("job", event(queue.StepAcquire, queue.StepCompleted))

	updates, cancel, ok := hub.Subscribe("job")
	if !ok {
		t.Fatal("expected a live feed")
	}
	defer cancel()

	backlog := collect(t, updates, 2)
	if backlog[0].Event.Step != queue.StepAcquire || backlog[1].Event.Step != queue.StepTranscribe {
		t.Fatalf("backlog must replay in canonical order, got %s then %s",
			backlog[0].Event.Step, backlog[1].Event.Step)
	}

	hub.Publish("job", event(queue.StepTranslate, queue.StepRunning))
	live := collect(t, updates, 1)
	if live[0].Event.Step != queue.StepTranslate {
		t.Fatalf("expected live translate event, got %s", live[0].Event.Step)
	}
}

func TestPublishUpsertsByStepKey(t *testing.T) {
	hub := progress.NewHub()
	hub.Open("job")

	hub.Publish("job", event(queue.StepAcquire, queue.StepRunning))
	hub.Publish("job", event(queue.StepAcquire, queue.StepCompleted))

	events, ok := hub.Snapshot("job")
	if !ok {
		t.Fatal("expected open feed")
	}
	if len(events) != 1 {
		t.Fatalf("expected one entry per step key, got %d", len(events))
	}
	if events[0].Status != queue.StepCompleted {
		t.Fatalf("expected latest status to win, got %s", events[0].Status)
	}
}

func TestFinishDeliversDoneExactlyOnce(t *testing.T) {
	hub := progress.NewHub()
	hub.Open("job")

	updates, cancel, ok := hub.Subscribe("job")
	if !ok {
		t.Fatal("expected a live feed")
	}
	defer cancel()

	hub.Publish("job", event(queue.StepAcquire, queue.StepCompleted))
	hub.Finish("job")
	hub.Finish("job")

	got := collect(t, updates, 2)
	if got[0].Done {
		t.Fatal("progress must precede done")
	}
	if !got[1].Done {
		t.Fatal("expected done marker")
	}

	select {
	case update, open := <-updates:
		if open {
			t.Fatalf("expected closed channel after done, got %#v", update)
		}
	case <-time.After(time.Second):
		t.Fatal("expected channel to close after done")
	}
}

func TestFinishEvictsFeed(t *testing.T) {
	hub := progress.NewHub()
	hub.Open("job")
	hub.Publish("job", event(queue.StepAcquire, queue.StepCompleted))
	hub.Finish("job")

	// Late subscribers fall back to the persisted step log; the hub keeps no
	// state for finished jobs.
	if _, _, ok := hub.Subscribe("job"); ok {
		t.Fatal("expected no feed after finish")
	}
	if _, ok := hub.Snapshot("job"); ok {
		t.Fatal("expected snapshot to report no feed after finish")
	}

	// A stray publish after finish must not resurrect the feed.
	hub.Publish("job", event(queue.StepTranscribe, queue.StepRunning))
	if _, ok := hub.Snapshot("job"); ok {
		t.Fatal("expected publish after finish to be dropped")
	}

	hub.Finish("job")
}

func TestDropClosesSubscribersWithoutDone(t *testing.T) {
	hub := progress.NewHub()
	hub.Open("job")

	updates, cancel, ok := hub.Subscribe("job")
	if !ok {
		t.Fatal("expected a live feed")
	}
	defer cancel()

	hub.Drop("job")

	select {
	case update, open := <-updates:
		if open {
			t.Fatalf("expected closed channel, got %#v", update)
		}
	case <-time.After(time.Second):
		t.Fatal("expected channel to close on drop")
	}

	if _, exists := hub.Snapshot("job"); exists {
		t.Fatal("expected feed to be removed")
	}
}

func TestSubscribeUnknownJob(t *testing.T) {
	hub := progress.NewHub()
	if _, _, ok := hub.Subscribe("missing"); ok {
		t.Fatal("expected no feed for unknown job")
	}
}
