package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"casaingest/progress"
)

// memBus is an in-process stand-in for the NATS bus.
type memBus struct {
	mu   sync.Mutex
	subs map[string][]func([]byte)
}

func (b *memBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	handlers := append([]func([]byte){}, b.subs[subject]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
	return nil
}

func (b *memBus) Subscribe(subject string, handler func([]byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[string][]func([]byte))
	}
	b.subs[subject] = append(b.subs[subject], handler)
	return func() {}, nil
}

func (b *memBus) waitSubscribed(t *testing.T, subject string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.subs[subject])
		b.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber appeared on %s", subject)
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(msg, &out); err != nil {
		t.Fatalf("decode frame %q: %v", msg, err)
	}
	return out
}

func TestProgressWebSocket(t *testing.T) {
	s := newTestServer(&fakeStore{}, nil)
	bus := s.bus.(*memBus)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress/task-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ack := readFrame(t, conn)
	if ack["type"] != progress.EventConnected {
		t.Fatalf("first frame = %v, want connected ack", ack)
	}
	if ack["task_id"] != "task-1" {
		t.Errorf("task_id = %v", ack["task_id"])
	}

	bus.waitSubscribed(t, progress.Subject("task-1"))

	tr := progress.NewTracker(bus, "task-1")
	tr.Progress(40, "Extracting property data")

	frame := readFrame(t, conn)
	if frame["type"] != progress.EventProgress {
		t.Fatalf("frame = %v, want progress event", frame)
	}
	if frame["progress"] != float64(40) {
		t.Errorf("progress = %v, want 40", frame["progress"])
	}

	tr.Complete(map[string]any{"title": "Casa en Jacó"})

	frame = readFrame(t, conn)
	if frame["type"] != progress.EventComplete {
		t.Fatalf("frame = %v, want complete event", frame)
	}
}

func TestProgressWebSocketRejectsInvalidJSON(t *testing.T) {
	s := newTestServer(&fakeStore{}, nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress/task-2"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame(t, conn) // connected ack

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("frame = %v, want error", frame)
	}
	if frame["message"] != "Invalid JSON format" {
		t.Errorf("message = %v", frame["message"])
	}
}
