package progress

import (
	"sort"
	"sync"

	"dubcast/internal/queue"
)

// subscriberBuffer bounds each subscriber's delivery channel. The step log is
// bounded by the stage count, so a healthy consumer never comes close; a
// stalled one is dropped rather than blocking the executor.
const subscriberBuffer = 64

// Update is one delivery to a step log subscriber. Done is sent exactly once,
// after the final event, and carries no event payload.
type Update struct {
	Event queue.StepEvent
	Done  bool
}

// Hub fans out per-job step events to subscribers. Events are upserted by
// step key; subscribers receive the current backlog in canonical stage order
// followed by live updates and a final done marker.
type Hub struct {
	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	events map[queue.Step]queue.StepEvent
	subs   map[*subscriber]struct{}
}

type subscriber struct {
	ch     chan Update
	closed bool
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{feeds: make(map[string]*feed)}
}

// Open creates the feed for a job. Called at submission time.
func (h *Hub) Open(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.feeds[jobID]; ok {
		return
	}
	h.feeds[jobID] = &feed{
		events: make(map[queue.Step]queue.StepEvent),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish upserts an event into the job's feed and delivers it to all
// subscribers. Publishing to an unknown or finished feed is a no-op.
func (h *Hub) Publish(jobID string, event queue.StepEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[jobID]
	if !ok {
		return
	}
	f.events[event.Step] = event
	f.deliver(Update{Event: event})
}

// Finish sends the done marker to all subscribers, closes their channels, and
// evicts the feed. The terminal job record is persisted before Finish is
// called, so late subscribers replay the step log from the store instead.
func (h *Hub) Finish(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[jobID]
	if !ok {
		return
	}
	for sub := range f.subs {
		sub.send(Update{Done: true})
		sub.close()
	}
	delete(h.feeds, jobID)
}

// Drop removes a job's feed entirely, closing any remaining subscribers
// without a done marker. Used when a job is deleted.
func (h *Hub) Drop(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[jobID]
	if !ok {
		return
	}
	for sub := range f.subs {
		sub.close()
	}
	delete(h.feeds, jobID)
}

// Subscribe attaches to a job's feed. The returned channel first yields the
// current backlog in canonical stage order, then live updates, then a single
// done marker, after which it is closed. The cancel function detaches early.
// ok is false when the hub holds no feed for the job; finished and deleted
// jobs have none.
func (h *Hub) Subscribe(jobID string) (<-chan Update, func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[jobID]
	if !ok {
		return nil, nil, false
	}

	sub := &subscriber{ch: make(chan Update, subscriberBuffer)}
	for _, event := range sortedEvents(f.events) {
		sub.send(Update{Event: event})
	}

	f.subs[sub] = struct{}{}
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, attached := f.subs[sub]; attached {
			delete(f.subs, sub)
			sub.close()
		}
	}
	return sub.ch, cancel, true
}

// Snapshot returns the feed's current events in canonical order. ok is false
// when the hub holds no feed for the job.
func (h *Hub) Snapshot(jobID string) (events []queue.StepEvent, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, exists := h.feeds[jobID]
	if !exists {
		return nil, false
	}
	return sortedEvents(f.events), true
}

func (f *feed) deliver(update Update) {
	for sub := range f.subs {
		if !sub.send(update) {
			// Subscriber stopped draining; cut it loose.
			sub.close()
			delete(f.subs, sub)
		}
	}
}

func (s *subscriber) send(update Update) bool {
	if s.closed {
		return false
	}
	select {
	case s.ch <- update:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func sortedEvents(events map[queue.Step]queue.StepEvent) []queue.StepEvent {
	out := make([]queue.StepEvent, 0, len(events))
	for _, event := range events {
		out = append(out, event)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return queue.StepIndex(out[i].Step) < queue.StepIndex(out[j].Step)
	})
	return out
}
