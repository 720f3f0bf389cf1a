package progress

import (
	"encoding/json"
	"testing"
)

type capturePub struct {
	subjects []string
	events   []Event
}

func (c *capturePub) Publish(subject string, data []byte) error {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	c.subjects = append(c.subjects, subject)
	c.events = append(c.events, e)
	return nil
}

func TestTrackerMonotonicProgress(t *testing.T) {
	pub := &capturePub{}
	tr := NewTracker(pub, "task-1")

	tr.Progress(10, "fetching")
	tr.Progress(40, "extracting")
	tr.Progress(25, "stale update")
	tr.Progress(150, "overflow")

	if len(pub.events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(pub.events))
	}

	want := []int{10, 40, 40, 100}
	for i, e := range pub.events {
		if e.Progress != want[i] {
			t.Errorf("event %d: progress = %d, want %d", i, e.Progress, want[i])
		}
		if e.Type != EventProgress {
			t.Errorf("event %d: type = %q, want %q", i, e.Type, EventProgress)
		}
	}

	if pub.subjects[0] != "ingest.progress.task-1" {
		t.Errorf("subject = %q", pub.subjects[0])
	}
}

func TestTrackerCompleteIsTerminal(t *testing.T) {
	pub := &capturePub{}
	tr := NewTracker(pub, "task-2")

	tr.Progress(50, "halfway")
	tr.Complete(map[string]any{"property_name": "Casa"})
	tr.Progress(60, "late update")
	tr.Error("late error")
	tr.Complete(nil)

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}

	last := pub.events[1]
	if last.Type != EventComplete {
		t.Fatalf("type = %q, want %q", last.Type, EventComplete)
	}
	if last.Progress != 100 {
		t.Errorf("progress = %d, want 100", last.Progress)
	}
	if last.Data["property_name"] != "Casa" {
		t.Errorf("data = %v", last.Data)
	}
}

func TestTrackerErrorIsTerminal(t *testing.T) {
	pub := &capturePub{}
	tr := NewTracker(pub, "task-3")

	tr.Progress(30, "fetching")
	tr.Error("fetch failed")
	tr.Progress(40, "late")
	tr.Complete(nil)

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}

	last := pub.events[1]
	if last.Type != EventError {
		t.Fatalf("type = %q, want %q", last.Type, EventError)
	}
	if last.Error != "fetch failed" {
		t.Errorf("error = %q", last.Error)
	}
	if last.Progress != 30 {
		t.Errorf("progress = %d, want 30", last.Progress)
	}
}

func TestTrackerNilPublisherIsNoOp(t *testing.T) {
	tr := NewTracker(nil, "task-4")

	tr.Progress(10, "fetching")
	tr.Complete(nil)
	tr.Error("ignored")
}

func TestNATSBusNilConn(t *testing.T) {
	bus := NewNATSBus(nil)

	if err := bus.Publish("ingest.progress.x", []byte("{}")); err != nil {
		t.Fatalf("nil conn publish: %v", err)
	}
	if _, err := bus.Subscribe("ingest.progress.x", func([]byte) {}); err == nil {
		t.Fatal("expected subscribe error with nil conn")
	}
}
