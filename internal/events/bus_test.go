package events

import "testing"

func TestBus_EmitSubscribe(t *testing.T) {
	bus := NewBus(8)
	ch, unsub := bus.Subscribe(0)
	defer unsub()

	bus.Emit(NewEvent(BackendAdded).WithBackend("gpu-0"))

	select {
	case e := <-ch:
		if e.Type != BackendAdded {
			t.Errorf("expected BackendAdded, got %s", e.Type)
		}
	default:
		t.Fatal("expected an event to be delivered")
	}
}

func TestBus_SubscribeResumeFromSeq(t *testing.T) {
	bus := NewBus(8)

	bus.Emit(NewEvent(BackendAdded).WithBackend("a"))
	bus.Emit(NewEvent(BackendAdded).WithBackend("b"))
	bus.Emit(NewEvent(BackendAdded).WithBackend("c"))

	// A fresh subscriber from 0 replays everything still in the log.
	ch, unsub := bus.Subscribe(0)
	defer unsub()

	var backends []string
	for i := 0; i < 3; i++ {
		backends = append(backends, (<-ch).Backend)
	}
	if backends[0] != "a" || backends[1] != "b" || backends[2] != "c" {
		t.Errorf("unexpected replay order: %v", backends)
	}
}

func TestBus_SubscribeResumeFromMiddle(t *testing.T) {
	bus := NewBus(8)
	bus.Emit(NewEvent(BackendAdded).WithBackend("a")) // seq 1
	bus.Emit(NewEvent(BackendAdded).WithBackend("b")) // seq 2

	ch, unsub := bus.Subscribe(1)
	defer unsub()

	e := <-ch
	if e.Backend != "b" {
		t.Errorf("expected to resume after seq 1 with backend b, got %q", e.Backend)
	}
}

func TestBus_CloseClosesSubscribers(t *testing.T) {
	bus := NewBus(8)
	ch, _ := bus.Subscribe(0)

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel to be closed")
	}

	// Emit after close is a silent no-op, not a panic.
	bus.Emit(NewEvent(BackendAdded))
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(8)
	ch, unsub := bus.Subscribe(0)
	unsub()

	bus.Emit(NewEvent(BackendAdded))

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}
