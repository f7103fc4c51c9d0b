package driver

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dispatchd/dispatchd/internal/dispatch"
)

type collectingSink struct {
	progress []ProgressEvent
	images   []ImageEvent
}

func (s *collectingSink) OnProgress(e ProgressEvent) { s.progress = append(s.progress, e) }
func (s *collectingSink) OnImage(e ImageEvent)       { s.images = append(s.images, e) }

func TestHTTPDriver_Init_RecordsFeatures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features": ["sdxl", "controlnet"]}`)
	}))
	defer server.Close()

	d := NewHTTPDriver(HTTPConfig{BaseURL: server.URL})
	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	features := d.SupportedFeatures()
	if _, ok := features["sdxl"]; !ok {
		t.Error("expected sdxl in supported features")
	}
	if _, ok := features["controlnet"]; !ok {
		t.Error("expected controlnet in supported features")
	}
}

func TestHTTPDriver_Init_ConnectionError(t *testing.T) {
	d := NewHTTPDriver(HTTPConfig{BaseURL: "http://127.0.0.1:0"})
	err := d.Init(context.Background())
	if !dispatch.IsKind(err, dispatch.KindConnectionError) {
		t.Fatalf("expected KindConnectionError, got %v", err)
	}
}

func TestHTTPDriver_GenerateStream_RoutesFrames(t *testing.T) {
	imgData := base64.StdEncoding.EncodeToString([]byte("fakepng"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"gen_progress": {"step": 1, "total": 4, "message": "denoising"}}`+"\n")
		fmt.Fprintf(w, `{"image": %q}`+"\n", imgData)
	}))
	defer server.Close()

	d := NewHTTPDriver(HTTPConfig{BaseURL: server.URL})
	sink := &collectingSink{}

	err := d.GenerateStream(context.Background(), GenerateRequest{Prompt: "a cat", NumImages: 1}, "batch-1", sink)
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	if len(sink.progress) != 1 || sink.progress[0].Message != "denoising" {
		t.Errorf("unexpected progress events: %+v", sink.progress)
	}
	if len(sink.images) != 1 || string(sink.images[0].Data) != "fakepng" {
		t.Errorf("unexpected image events: %+v", sink.images)
	}
}

func TestHTTPDriver_GenerateStream_SessionInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error_id": "invalid_session_id"}`+"\n")
	}))
	defer server.Close()

	d := NewHTTPDriver(HTTPConfig{BaseURL: server.URL})
	err := d.GenerateStream(context.Background(), GenerateRequest{Prompt: "x", NumImages: 1}, "batch-1", &collectingSink{})

	if !dispatch.IsKind(err, dispatch.KindSessionInvalid) {
		t.Fatalf("expected KindSessionInvalid, got %v", err)
	}
}

func TestHTTPDriver_GenerateStream_Redirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"redirect": {"target": "a dog", "params": {"seed": 7}}}`+"\n")
	}))
	defer server.Close()

	d := NewHTTPDriver(HTTPConfig{BaseURL: server.URL})
	err := d.GenerateStream(context.Background(), GenerateRequest{Prompt: "x", NumImages: 1}, "batch-1", &collectingSink{})

	derr, ok := err.(*dispatch.Error)
	if !ok || derr.Kind != dispatch.KindRedirect {
		t.Fatalf("expected KindRedirect, got %v", err)
	}
	redirected, ok := derr.RedirectRequest.(GenerateRequest)
	if !ok || redirected.Prompt != "a dog" {
		t.Fatalf("unexpected redirect request: %+v", derr.RedirectRequest)
	}
}

func TestHTTPDriver_GenerateStream_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"gen_progress": {"step": 1, "total": 1}}`+"\n")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewHTTPDriver(HTTPConfig{BaseURL: server.URL})
	err := d.GenerateStream(ctx, GenerateRequest{Prompt: "x", NumImages: 1}, "batch-1", &collectingSink{})
	if err == nil {
		t.Fatal("expected an error for a pre-cancelled context")
	}
}
