package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/dispatchd/dispatchd/internal/dispatch"
	"github.com/dispatchd/dispatchd/internal/driver"
	"github.com/dispatchd/dispatchd/internal/events"
	"github.com/dispatchd/dispatchd/internal/record"
)

// fakePeer is a minimal stand-in for a peer instance of this same system,
// implementing just enough of the session/new, backends/list, and
// generate-ws endpoints (spec §6) to drive the Federation Driver under
// test.
type fakePeer struct {
	serverID       string
	countRunning   int
	backends       []backendInfo
	invalidateNext bool // if true, the next backends/list call returns invalid_session_id once
	upgrader       websocket.Upgrader
}

func newFakePeer() *fakePeer {
	return &fakePeer{serverID: "peer-1", countRunning: 3}
}

func (p *fakePeer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/new", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sessionNewResponse{
			SessionID:    "sess-1",
			ServerID:     p.serverID,
			CountRunning: p.countRunning,
		})
	})
	mux.HandleFunc("/backends/list", func(w http.ResponseWriter, r *http.Request) {
		if p.invalidateNext {
			p.invalidateNext = false
			_ = json.NewEncoder(w).Encode(wireErrorResponse{ErrorID: "invalid_session_id"})
			return
		}
		_ = json.NewEncoder(w).Encode(p.backends)
	})
	mux.HandleFunc("/generate-ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := p.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(wireFrame{GenProgress: &wireProgress{Step: 1, Total: 1, Message: "working"}})
		_ = conn.WriteJSON(wireFrame{Image: "aW1hZ2U="}) // base64("image")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	return mux
}

func runningBackends(n int, features ...string) []backendInfo {
	out := make([]backendInfo, n)
	for i := range out {
		out[i] = backendInfo{Status: "running", Type: "sdxl-remote", Features: features}
	}
	return out
}

type collectingSink struct {
	progress []driver.ProgressEvent
	images   []driver.ImageEvent
}

func (s *collectingSink) OnProgress(e driver.ProgressEvent) { s.progress = append(s.progress, e) }
func (s *collectingSink) OnImage(e driver.ImageEvent)       { s.images = append(s.images, e) }

func TestDriver_Init_EstablishesSessionAndShadows(t *testing.T) {
	peer := newFakePeer()
	peer.backends = runningBackends(3, "sdxl")
	server := httptest.NewServer(peer.handler())
	defer server.Close()

	d := dispatch.New(dispatch.Config{})
	bus := newTestBus()
	fd := New(Config{Address: server.URL, OverQueue: 1}, "parent", d, bus)
	d.Add(record.New("parent", "federation", true), fd)

	if err := fd.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if fd.RemoteCount() != 3 {
		t.Fatalf("expected remote count 3, got %d", fd.RemoteCount())
	}
	// target = max(0, 3 - 1 + 1) = 3
	if got := len(fd.ShadowRecordIDs()); got != 3 {
		t.Fatalf("expected 3 shadow records, got %d", got)
	}
	if _, ok := fd.SupportedFeatures()["sdxl"]; !ok {
		t.Fatalf("expected sdxl in supported features, got %+v", fd.SupportedFeatures())
	}
}

func TestDriver_LoopDetection_NoShadowsCreated(t *testing.T) {
	peer := newFakePeer()
	peer.serverID = "self-loop-id"
	peer.backends = runningBackends(2)
	server := httptest.NewServer(peer.handler())
	defer server.Close()

	d := dispatch.New(dispatch.Config{})
	fd := New(Config{Address: server.URL, LocalLoopID: "self-loop-id"}, "parent", d, newTestBus())
	d.Add(record.New("parent", "federation", true), fd)

	err := fd.Init(context.Background())
	if err == nil {
		t.Fatal("expected loop detection to fail Init")
	}
	if len(fd.ShadowRecordIDs()) != 0 {
		t.Fatalf("expected no shadow records after loop detection, got %d", len(fd.ShadowRecordIDs()))
	}
}

func TestDriver_LoopDetection_AllowIdle(t *testing.T) {
	peer := newFakePeer()
	peer.serverID = "self-loop-id"
	server := httptest.NewServer(peer.handler())
	defer server.Close()

	d := dispatch.New(dispatch.Config{})
	fd := New(Config{Address: server.URL, LocalLoopID: "self-loop-id", AllowIdle: true}, "parent", d, newTestBus())
	d.Add(record.New("parent", "federation", true), fd)

	if err := fd.Init(context.Background()); err != nil {
		t.Fatalf("expected idle degrade, not an error: %v", err)
	}
	if fd.DesiredStatus() != record.StatusIdle {
		t.Fatalf("expected DesiredStatus Idle, got %s", fd.DesiredStatus())
	}
}

func TestDriver_PeerUnreachable_AllowIdle(t *testing.T) {
	d := dispatch.New(dispatch.Config{})
	fd := New(Config{Address: "http://127.0.0.1:0", AllowIdle: true}, "parent", d, newTestBus())
	d.Add(record.New("parent", "federation", true), fd)

	if err := fd.Init(context.Background()); err != nil {
		t.Fatalf("expected idle degrade on unreachable peer: %v", err)
	}
	if fd.DesiredStatus() != record.StatusIdle {
		t.Fatal("expected Idle after an unreachable peer with allow_idle")
	}
}

func TestDriver_PeerUnreachable_NoIdle_Errors(t *testing.T) {
	d := dispatch.New(dispatch.Config{})
	fd := New(Config{Address: "http://127.0.0.1:0"}, "parent", d, newTestBus())
	d.Add(record.New("parent", "federation", true), fd)

	err := fd.Init(context.Background())
	if !dispatch.IsKind(err, dispatch.KindConnectionError) {
		t.Fatalf("expected KindConnectionError, got %v", err)
	}
}

func TestDriver_SessionInvalid_RecoversOnce(t *testing.T) {
	peer := newFakePeer()
	peer.backends = runningBackends(1)
	server := httptest.NewServer(peer.handler())
	defer server.Close()

	d := dispatch.New(dispatch.Config{})
	fd := New(Config{Address: server.URL}, "parent", d, newTestBus())
	d.Add(record.New("parent", "federation", true), fd)

	if err := fd.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	peer.invalidateNext = true
	if err := fd.refresh(context.Background()); err != nil {
		t.Fatalf("refresh should recover from one invalidation, got: %v", err)
	}
}

func TestDriver_GenerateStream_ForwardsFrames(t *testing.T) {
	peer := newFakePeer()
	peer.backends = runningBackends(1)
	server := httptest.NewServer(peer.handler())
	defer server.Close()

	d := dispatch.New(dispatch.Config{})
	fd := New(Config{Address: server.URL}, "parent", d, newTestBus())
	d.Add(record.New("parent", "federation", true), fd)
	if err := fd.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	sink := &collectingSink{}
	err := fd.GenerateStream(context.Background(), driver.GenerateRequest{Prompt: "x", NumImages: 1}, "batch-1", sink)
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
	if len(sink.progress) != 1 || len(sink.images) != 1 {
		t.Fatalf("expected one progress and one image event, got %+v / %+v", sink.progress, sink.images)
	}
	if string(sink.images[0].Data) != "image" {
		t.Fatalf("unexpected image payload: %q", sink.images[0].Data)
	}
}

func TestDriver_ShadowResize_ShrinksFromFront(t *testing.T) {
	peer := newFakePeer()
	peer.backends = runningBackends(3)
	server := httptest.NewServer(peer.handler())
	defer server.Close()

	d := dispatch.New(dispatch.Config{})
	fd := New(Config{Address: server.URL, OverQueue: 1}, "parent", d, newTestBus())
	d.Add(record.New("parent", "federation", true), fd)
	if err := fd.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	before := fd.ShadowRecordIDs()
	if len(before) != 3 {
		t.Fatalf("expected 3 shadows, got %d", len(before))
	}

	peer.countRunning = 1
	peer.backends = runningBackends(1)
	if err := fd.refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	after := fd.ShadowRecordIDs()
	// target = max(0, 1 - 1 + 1) = 1; the surviving id must be the last of
	// the original three (front is trimmed first).
	if len(after) != 1 {
		t.Fatalf("expected 1 shadow after shrink, got %d", len(after))
	}
	if after[0] != before[2] {
		t.Fatalf("expected surviving shadow to be the last original one, got %s want %s", after[0], before[2])
	}
}

func newTestBus() *events.Bus {
	return events.NewBus(64)
}
