package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind names a progress event
type EventKind string

// Event kinds
const (
	EventRunStarted    EventKind = "run_started"
	EventStepStarted   EventKind = "step_started"
	EventStepRetry     EventKind = "step_retry"
	EventStepCompleted EventKind = "step_completed"
	EventRunPaused     EventKind = "run_paused"
	EventRunCompleted  EventKind = "run_completed"
	EventRunFailed     EventKind = "run_failed"
	EventRunCancelled  EventKind = "run_cancelled"
	EventWarning       EventKind = "warning"
)

// Final reports whether no further events follow for the current execution.
func (k EventKind) Final() bool {
	switch k {
	case EventRunPaused, EventRunCompleted, EventRunFailed, EventRunCancelled:
		return true
	}
	return false
}

// ProgressEvent represents a progress update during run execution
type ProgressEvent struct {
	RunID   uuid.UUID `json:"run_id"`
	Kind    EventKind `json:"kind"`
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// subscriberBuffer is how many events a slow subscriber may fall behind before
// events are dropped for it
const subscriberBuffer = 64

// Broadcaster fans progress events out to per-run subscribers. Publishing
// never blocks the engine; a subscriber that cannot keep up loses events.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan ProgressEvent]struct{}
}

// NewBroadcaster creates a broadcaster with no subscribers
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]map[chan ProgressEvent]struct{})}
}

// Subscribe returns a channel of events for runID and a function that ends the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe(runID uuid.UUID) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[chan ProgressEvent]struct{})
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[runID], ch)
			if len(b.subs[runID]) == 0 {
				delete(b.subs, runID)
			}
			close(ch)
		})
	}
}

// Publish delivers e to the run's current subscribers
func (b *Broadcaster) Publish(e ProgressEvent) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[e.RunID] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of subscriptions for runID
func (b *Broadcaster) Subscribers(runID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}
