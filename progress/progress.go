// Package progress publishes per-task ingestion progress events over
// the message bus. Subscribers (the WebSocket bridge) relay them to
// clients; with no bus configured everything degrades to a no-op.
package progress

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

const (
	EventConnected = "connected"
	EventProgress  = "progress"
	EventComplete  = "complete"
	EventError     = "error"
)

type Event struct {
	Type      string         `json:"type"`
	TaskID    string         `json:"task_id"`
	Progress  int            `json:"progress,omitempty"`
	Step      string         `json:"step,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher is the bus write side. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subject is the per-task bus subject progress events travel on.
func Subject(taskID string) string {
	return "ingest.progress." + taskID
}

// Tracker emits events for one ingestion task. Percentages never go
// backwards: a lower value than the last published one is raised to
// it. After a terminal event (complete or error) the tracker goes
// silent.
type Tracker struct {
	pub    Publisher
	taskID string

	mu   sync.Mutex
	last int
	done bool
}

func NewTracker(pub Publisher, taskID string) *Tracker {
	return &Tracker{pub: pub, taskID: taskID}
}

func (t *Tracker) TaskID() string { return t.taskID }

func (t *Tracker) Progress(pct int, step string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	if pct < t.last {
		pct = t.last
	}
	if pct > 100 {
		pct = 100
	}
	t.last = pct

	t.publish(Event{Type: EventProgress, TaskID: t.taskID, Progress: pct, Step: step})
}

func (t *Tracker) Complete(data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	t.done = true
	t.last = 100

	t.publish(Event{Type: EventComplete, TaskID: t.taskID, Progress: 100, Data: data})
}

func (t *Tracker) Error(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return
	}
	t.done = true

	t.publish(Event{Type: EventError, TaskID: t.taskID, Progress: t.last, Error: msg})
}

func (t *Tracker) publish(e Event) {
	if t.pub == nil {
		return
	}
	e.Timestamp = time.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("Warning: marshal progress event: %v", err)
		return
	}
	if err := t.pub.Publish(Subject(t.taskID), data); err != nil {
		log.Printf("Warning: publish progress for %s: %v", t.taskID, err)
	}
}
