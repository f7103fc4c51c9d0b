// Package apiv1 defines the dispatch daemon's local control-plane service:
// message types and a hand-wired gRPC service descriptor speaking JSON
// instead of a protoc-generated wire format (see DESIGN.md's apiv1 entry for
// why). The method set mirrors the control surface a CLI or sidecar needs
// over the dispatch core: submit, cancel, inspect, watch, health, shutdown.
package apiv1

import "time"

// SubmitGenerationRequest carries one generation request to the daemon.
type SubmitGenerationRequest struct {
	Prompt         string         `json:"prompt"`
	NumImages      int            `json:"num_images"`
	ModelID        string         `json:"model_id,omitempty"`
	PreferredModel string         `json:"preferred_model,omitempty"`
	DoNotSave      bool           `json:"do_not_save,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// SubmitGenerationResponse returns the batch id the caller watches.
type SubmitGenerationResponse struct {
	BatchID string `json:"batch_id"`
}

// CancelGenerationRequest cancels an in-flight or queued batch.
type CancelGenerationRequest struct {
	BatchID string `json:"batch_id"`
}

// CancelGenerationResponse reports whether cancellation was accepted.
type CancelGenerationResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ListWorkersRequest has no filter fields; the daemon always returns every
// Worker Record it knows about.
type ListWorkersRequest struct{}

// WorkerStatus is the wire shape of one Worker Record snapshot.
type WorkerStatus struct {
	ID          string `json:"id"`
	DriverType  string `json:"driver_type"`
	Status      string `json:"status"`
	Outstanding int    `json:"outstanding"`
	IsShadow    bool   `json:"is_shadow,omitempty"`
}

// ListWorkersResponse lists every Worker Record in the pool.
type ListWorkersResponse struct {
	Workers []WorkerStatus `json:"workers"`
}

// WatchJobRequest subscribes to the daemon's event bus from a sequence
// number onward, 0 meaning "from the beginning of the retained log".
type WatchJobRequest struct {
	BatchID      string `json:"batch_id,omitempty"`
	FromSequence int    `json:"from_sequence"`
}

// JobEvent is one streamed event, the wire projection of events.Event.
type JobEvent struct {
	Sequence    int            `json:"sequence"`
	Type        string         `json:"type"`
	BackendID   string         `json:"backend_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	PayloadJSON string         `json:"payload_json,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// HealthRequest has no fields.
type HealthRequest struct{}

// HealthResponse reports daemon liveness and pool size for monitoring.
type HealthResponse struct {
	Healthy      bool   `json:"healthy"`
	WorkerCount  int    `json:"worker_count"`
	Version      string `json:"version"`
	ShuttingDown bool   `json:"shutting_down"`
}

// ShutdownRequest requests daemon termination.
type ShutdownRequest struct {
	WaitForOutstanding bool `json:"wait_for_outstanding"`
	TimeoutSeconds     int  `json:"timeout_seconds"`
}

// ShutdownResponse reports how shutdown went.
type ShutdownResponse struct {
	Success            bool `json:"success"`
	OutstandingAborted int  `json:"outstanding_aborted"`
}
