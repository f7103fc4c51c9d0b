package events

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLogHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	handler := LogHandler(LogConfig{Writer: &buf})

	event := Event{
		Type:    RequestCompleted,
		Backend: "gpu-0",
		Request: "req-1",
		Time:    time.Now(),
	}
	handler(event)

	output := buf.String()
	if !strings.Contains(output, "[request.completed]") {
		t.Errorf("expected output to contain [request.completed], got: %s", output)
	}
	if !strings.Contains(output, "backend=gpu-0") {
		t.Errorf("expected output to contain backend=gpu-0, got: %s", output)
	}
}

func TestLogHandler_IncludePayload(t *testing.T) {
	var buf bytes.Buffer
	handler := LogHandler(LogConfig{Writer: &buf, IncludePayload: true})

	handler(Event{Type: RequestProgress, Payload: map[string]any{"step": 2}, Time: time.Now()})

	output := buf.String()
	if !strings.Contains(output, "payload=") {
		t.Errorf("expected output to contain payload, got: %s", output)
	}
}

func TestPump(t *testing.T) {
	bus := NewBus(4)
	ch, unsub := bus.Subscribe(0)
	defer unsub()

	var got []Event
	done := make(chan struct{})
	go func() {
		Pump(ch, func(e Event) { got = append(got, e) })
		close(done)
	}()

	bus.Emit(NewEvent(BackendRunning).WithBackend("gpu-0"))
	bus.Close()
	<-done

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Backend != "gpu-0" {
		t.Errorf("expected backend gpu-0, got %q", got[0].Backend)
	}
}
