// Package imaging defines the collaborator interfaces the Generation
// Pipeline calls out to for metadata embedding and durable storage. Per
// spec §1, the image file-format encoder, metadata embedder, and output
// path templating are explicitly out of scope for the dispatch core; this
// package only fixes the shape of the boundary.
package imaging

import "context"

// Image is an opaque generated-image payload. The core never interprets
// its bytes; it only threads them from a Driver to a Session's collaborator
// callbacks.
type Image struct {
	Data        []byte
	ContentType string
	Index       int
}

// Metadata is the embedder-produced string the core persists alongside an
// Image (e.g. an encoded parameters block). Its internal format is owned by
// the metadata embedder, not the core.
type Metadata string

// Session is the set of per-request callbacks the Generation Pipeline
// invokes around an accepted image (spec §6: "Per-session callbacks
// required by the Pipeline").
type Session interface {
	// ApplyMetadata embeds generation parameters into image, returning the
	// (possibly re-encoded) image and the metadata string recorded
	// alongside it. input and extras carry the original request and any
	// driver-reported seed parameters; index is the image's position
	// within its batch.
	ApplyMetadata(ctx context.Context, image Image, input map[string]any, extras map[string]any, index int) (Image, Metadata, error)

	// SaveImage durably stores image with its metadata. The return value
	// is an implementation-defined reference (a path, a URL, a record ID)
	// the core passes back to the caller without interpreting.
	SaveImage(ctx context.Context, image Image, metadata Metadata) (string, error)
}
