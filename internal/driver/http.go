package driver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dispatchd/dispatchd/internal/dispatch"
)

// HTTPConfig configures an HTTPDriver against a locally-managed backend
// that speaks the same newline-delimited JSON streaming shape as the
// federation wire protocol's generate-ws endpoint (spec §6), so the same
// event vocabulary serves both a local worker and a federated one.
type HTTPConfig struct {
	// BaseURL is the backend's HTTP endpoint, e.g. "http://127.0.0.1:7860".
	BaseURL string
	Client  *http.Client
	// InitPath, StreamPath name the backend's health-check and
	// generation-stream routes.
	InitPath   string
	StreamPath string
}

// wireEvent mirrors the generate-ws frame shape from spec §6: a
// discriminated envelope carrying exactly one of gen_progress, image, or
// error_id per line, shaped after the teacher's StreamEvent/DeltaEvent
// split in internal/provider/stream.go.
type wireEvent struct {
	GenProgress *wireProgress  `json:"gen_progress,omitempty"`
	Image       string         `json:"image,omitempty"`
	ErrorID     string         `json:"error_id,omitempty"`
	Redirect    *wireRedirect  `json:"redirect,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

type wireProgress struct {
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

type wireRedirect struct {
	Target string         `json:"target"`
	Params map[string]any `json:"params,omitempty"`
}

// HTTPDriver is a Worker Driver that speaks to a locally-run backend over
// HTTP, reading newline-delimited JSON progress/image frames.
type HTTPDriver struct {
	cfg HTTPConfig

	mu       sync.RWMutex
	features map[string]struct{}
}

// NewHTTPDriver constructs a driver against the given backend. If
// cfg.Client is nil, a default client is used.
func NewHTTPDriver(cfg HTTPConfig) *HTTPDriver {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 0}
	}
	if cfg.InitPath == "" {
		cfg.InitPath = "/health"
	}
	if cfg.StreamPath == "" {
		cfg.StreamPath = "/generate-ws"
	}
	return &HTTPDriver{cfg: cfg, features: make(map[string]struct{})}
}

// Init probes the backend's health endpoint and records any advertised
// feature tags.
func (d *HTTPDriver) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.BaseURL+d.cfg.InitPath, nil)
	if err != nil {
		return dispatch.Wrap(dispatch.KindInternalError, err)
	}

	resp, err := d.cfg.Client.Do(req)
	if err != nil {
		return dispatch.Wrap(dispatch.KindConnectionError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dispatch.NewError(dispatch.KindConnectionError, fmt.Sprintf("health check returned %d", resp.StatusCode))
	}

	var body struct {
		Features []string `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		d.mu.Lock()
		d.features = make(map[string]struct{}, len(body.Features))
		for _, f := range body.Features {
			d.features[f] = struct{}{}
		}
		d.mu.Unlock()
	}
	return nil
}

// Shutdown is a no-op for a stateless HTTP client; nothing process-local to
// release.
func (d *HTTPDriver) Shutdown(ctx context.Context) error {
	return nil
}

// LoadModel is a no-op: this driver expects the backend to select a model
// per-request via GenerateRequest.ModelID.
func (d *HTTPDriver) LoadModel(ctx context.Context, modelID string) (bool, error) {
	return true, nil
}

// SupportedFeatures returns the features observed at the last Init.
func (d *HTTPDriver) SupportedFeatures() map[string]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]struct{}, len(d.features))
	for f := range d.features {
		out[f] = struct{}{}
	}
	return out
}

// GenerateStream posts the request and reads the newline-delimited JSON
// response, routing each frame to sink. A frame carrying error_id is
// surfaced as a *dispatch.Error; a frame carrying redirect ends the stream
// with a KindRedirect error whose RedirectRequest the pipeline re-submits.
func (d *HTTPDriver) GenerateStream(ctx context.Context, genReq GenerateRequest, batchID string, sink Sink) error {
	payload := map[string]any{
		"batch_id":   batchID,
		"prompt":     genReq.Prompt,
		"images":     genReq.NumImages,
		"donotsave":  genReq.DoNotSave,
		"model":      genReq.ModelID,
		"params":     genReq.Params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return dispatch.Wrap(dispatch.KindInternalError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+d.cfg.StreamPath, bytes.NewReader(body))
	if err != nil {
		return dispatch.Wrap(dispatch.KindInternalError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dispatch.NewError(dispatch.KindCancelledError, "")
		}
		return dispatch.Wrap(dispatch.KindConnectionError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dispatch.NewError(dispatch.KindConnectionError, fmt.Sprintf("generate returned %d", resp.StatusCode))
	}

	return d.drain(ctx, resp, sink)
}

func (d *HTTPDriver) drain(ctx context.Context, resp *http.Response, sink Sink) error {
	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	imageIndex := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return dispatch.NewError(dispatch.KindCancelledError, "")
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame wireEvent
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}

		switch {
		case frame.ErrorID != "":
			return MapBackendError(frame.ErrorID)
		case frame.Redirect != nil:
			return &dispatch.Error{
				Kind: dispatch.KindRedirect,
				RedirectRequest: GenerateRequest{
					Prompt:    frame.Redirect.Target,
					NumImages: 1,
					Params:    frame.Redirect.Params,
				},
			}
		case frame.GenProgress != nil:
			sink.OnProgress(ProgressEvent{
				Step:    frame.GenProgress.Step,
				Total:   frame.GenProgress.Total,
				Message: frame.GenProgress.Message,
			})
		case frame.Image != "":
			data, err := base64.StdEncoding.DecodeString(frame.Image)
			if err != nil {
				return dispatch.Wrap(dispatch.KindInternalError, err)
			}
			sink.OnImage(ImageEvent{Index: imageIndex, Data: data, SeedParams: frame.Params})
			imageIndex++
		}
	}

	if err := scanner.Err(); err != nil {
		return dispatch.Wrap(dispatch.KindConnectionError, err)
	}
	return nil
}

// MapBackendError translates the federation wire protocol's error_id
// strings (spec §6) into the dispatch core's fixed error kinds, shared by
// HTTPDriver and the Federation Driver since both speak the same frame
// shape.
func MapBackendError(errorID string) error {
	switch errorID {
	case "invalid_session_id":
		return dispatch.NewError(dispatch.KindSessionInvalid, "")
	case "timeout":
		return dispatch.NewError(dispatch.KindTimeoutError, "")
	default:
		return dispatch.NewError(dispatch.KindInternalError, errorID)
	}
}

// idleProbeInterval is a re-probe cadence for drivers waiting out a
// transient backend outage. The federation driver's idle monitor does not
// use it; it has its own Config.IdleProbeInterval (default 10s).
const idleProbeInterval = 1 * time.Second
