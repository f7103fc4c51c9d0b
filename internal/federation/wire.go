package federation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dispatchd/dispatchd/internal/dispatch"
	"github.com/dispatchd/dispatchd/internal/driver"
)

// sessionNewResponse mirrors the session/new endpoint's response fields of
// interest (spec §6).
type sessionNewResponse struct {
	SessionID    string `json:"session_id"`
	ServerID     string `json:"server_id"`
	CountRunning int    `json:"count_running"`
}

// backendInfo mirrors one element of backends/list's response sequence.
type backendInfo struct {
	Status   string   `json:"status"`
	Type     string   `json:"type"`
	Features []string `json:"features"`
}

// wireErrorResponse is the shared error envelope the peer uses on both
// backends/list and generate when a session has gone stale.
type wireErrorResponse struct {
	ErrorID string `json:"error_id"`
}

// wireFrame mirrors the generate-ws frame shape from spec §6, the same
// vocabulary internal/driver's HTTPDriver parses, generalized here for a
// peer instance of this same system rather than a raw image backend.
type wireFrame struct {
	GenProgress *wireProgress  `json:"gen_progress,omitempty"`
	Image       string         `json:"image,omitempty"`
	ErrorID     string         `json:"error_id,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

type wireProgress struct {
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

func (d *Driver) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return dispatch.Wrap(dispatch.KindInternalError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Address+path, bytes.NewReader(body))
	if err != nil {
		return dispatch.Wrap(dispatch.KindInternalError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dispatch.NewError(dispatch.KindCancelledError, "")
		}
		return dispatch.Wrap(dispatch.KindConnectionError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return dispatch.Wrap(dispatch.KindConnectionError, err)
	}

	if resp.StatusCode != http.StatusOK {
		return dispatch.NewError(dispatch.KindConnectionError, fmt.Sprintf("%s returned %d", path, resp.StatusCode))
	}

	var maybeErr wireErrorResponse
	if json.Unmarshal(raw, &maybeErr) == nil && maybeErr.ErrorID != "" {
		return driver.MapBackendError(maybeErr.ErrorID)
	}

	if respBody != nil {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return dispatch.Wrap(dispatch.KindInternalError, err)
		}
	}
	return nil
}

// wireSessionNew calls POST /session/new.
func (d *Driver) wireSessionNew(ctx context.Context) (sessionNewResponse, error) {
	var resp sessionNewResponse
	err := d.postJSON(ctx, "/session/new", struct{}{}, &resp)
	return resp, err
}

// wireBackendsList calls POST /backends/list with the current session.
func (d *Driver) wireBackendsList(ctx context.Context, sessionID string) ([]backendInfo, error) {
	var resp []backendInfo
	err := d.postJSON(ctx, "/backends/list", map[string]string{"session_id": sessionID}, &resp)
	return resp, err
}

// wsURL converts an http(s):// address into its ws(s):// equivalent.
func wsURL(address string) string {
	switch {
	case strings.HasPrefix(address, "https://"):
		return "wss://" + strings.TrimPrefix(address, "https://")
	case strings.HasPrefix(address, "http://"):
		return "ws://" + strings.TrimPrefix(address, "http://")
	default:
		return address
	}
}

// wireGenerateWS opens the generate-ws streaming endpoint and routes each
// frame to sink until the peer closes the stream or reports a terminal
// error. This is the "RPC/streaming channel" the dispatch core's federation
// driver forwards requests over (spec §1, §6).
func (d *Driver) wireGenerateWS(ctx context.Context, sessionID string, req driver.GenerateRequest, batchID string, sink driver.Sink) error {
	dialer := d.wsDialer()
	conn, _, err := dialer.DialContext(ctx, wsURL(d.cfg.Address)+"/generate-ws", nil)
	if err != nil {
		if ctx.Err() != nil {
			return dispatch.NewError(dispatch.KindCancelledError, "")
		}
		return dispatch.Wrap(dispatch.KindConnectionError, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	payload := map[string]any{
		"session_id": sessionID,
		"batch_id":   batchID,
		"prompt":     req.Prompt,
		"images":     req.NumImages,
		"donotsave":  req.DoNotSave,
		"model":      req.ModelID,
		"params":     req.Params,
	}
	if err := conn.WriteJSON(payload); err != nil {
		if ctx.Err() != nil {
			return dispatch.NewError(dispatch.KindCancelledError, "")
		}
		return dispatch.Wrap(dispatch.KindConnectionError, err)
	}

	imageIndex := 0
	for {
		var frame wireFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return dispatch.NewError(dispatch.KindCancelledError, "")
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return dispatch.Wrap(dispatch.KindConnectionError, err)
		}

		switch {
		case frame.ErrorID != "":
			return driver.MapBackendError(frame.ErrorID)
		case frame.GenProgress != nil:
			sink.OnProgress(driver.ProgressEvent{
				Step:    frame.GenProgress.Step,
				Total:   frame.GenProgress.Total,
				Message: frame.GenProgress.Message,
			})
		case frame.Image != "":
			data, err := base64.StdEncoding.DecodeString(frame.Image)
			if err != nil {
				return dispatch.Wrap(dispatch.KindInternalError, err)
			}
			sink.OnImage(driver.ImageEvent{Index: imageIndex, Data: data, SeedParams: frame.Params})
			imageIndex++
		}
	}
}

func (d *Driver) httpClient() *http.Client {
	if d.cfg.HTTPClient != nil {
		return d.cfg.HTTPClient
	}
	return http.DefaultClient
}

func (d *Driver) wsDialer() *websocket.Dialer {
	if d.cfg.WSDialer != nil {
		return d.cfg.WSDialer
	}
	return &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
}
