package realtime

import (
	"sync"

	"derby-scoring-system/models"
)

// Publisher is the capability the ledger, registration service, and
// reconciliation scheduler need from the sync channel: fire-and-forget
// publication of an event on a game-day topic. No acknowledgment from
// subscribers is required for a publish to be considered successful.
type Publisher interface {
	Publish(topic string, event models.SyncEvent)
}

// Recorder is an in-memory Publisher for tests.
type Recorder struct {
	mu     sync.Mutex
	events []models.SyncEvent
	topics []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(topic string, event models.SyncEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, event)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []models.SyncEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SyncEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Topics returns the topics published to, in order.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.topics))
	copy(out, r.topics)
	return out
}

// Last returns the most recent event and whether one exists.
func (r *Recorder) Last() (models.SyncEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return models.SyncEvent{}, false
	}
	return r.events[len(r.events)-1], true
}
