// Package driver defines the Worker Driver contract the Dispatcher holds
// each Worker Record against, plus a concrete HTTP-based implementation for
// a local image-generation backend (spec §4.A).
package driver

import (
	"context"
)

// GenerateRequest is the opaque-to-the-dispatcher payload a caller submits.
// Fields mirror the federation wire protocol's generate request shape
// (spec §6) so a local driver and the Federation Driver can share it.
type GenerateRequest struct {
	Prompt     string
	NumImages  int
	DoNotSave  bool
	ModelID    string
	Params     map[string]any
}

// Sink receives the items a driver emits while streaming a generation.
// Implementations must be safe to call from the goroutine running
// GenerateStream; the Generation Pipeline provides the concrete sink.
type Sink interface {
	OnProgress(ProgressEvent)
	OnImage(ImageEvent)
}

// Driver is the adapter the Dispatcher holds over one generation worker.
// Implementations must not leave their Record's busy flag set on any exit
// path out of GenerateStream (spec §4.A).
type Driver interface {
	// Init transitions the backing worker Disabled -> Loading ->
	// {Running, Idle, Errored}. Must be idempotent under retry.
	Init(ctx context.Context) error

	// Shutdown releases all resources. Must tolerate being called from any
	// non-terminal state.
	Shutdown(ctx context.Context) error

	// LoadModel requests the driver load modelID. A driver that manages its
	// own model state may treat this as a no-op and return true.
	LoadModel(ctx context.Context, modelID string) (bool, error)

	// GenerateStream streams zero or more progress objects and image
	// payloads to sink, returning when the driver signals end-of-stream.
	// May return a *dispatch.Error with Kind == dispatch.KindRedirect to
	// ask the pipeline to release this worker and recurse with a new
	// request (see internal/dispatch).
	GenerateStream(ctx context.Context, req GenerateRequest, batchID string, sink Sink) error

	// SupportedFeatures returns a snapshot of capability tags (e.g.
	// "sdxl", "controlnet").
	SupportedFeatures() map[string]struct{}
}
