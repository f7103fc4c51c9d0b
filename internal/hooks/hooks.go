// Package hooks implements the pre/post-generate listener registry the
// Generation Pipeline consults at two points in a request's lifecycle
// (spec §4.F).
package hooks

import (
	"context"
	"sync"

	"github.com/dispatchd/dispatchd/internal/dispatch"
)

// PreGenerateEvent is what a pre-generate listener observes before any
// worker has been claimed.
type PreGenerateEvent struct {
	RequestID string
	Prompt    string
	Params    map[string]any
}

// PreListener inspects a request before acquisition. Returning a non-nil
// error aborts the request; the pipeline wraps it as a UserError unless it
// is already a *dispatch.Error.
type PreListener func(ctx context.Context, e PreGenerateEvent) error

// PostGenerateEvent is what a post-generate listener observes once an image
// has been produced but before it is saved.
type PostGenerateEvent struct {
	RequestID string
	Index     int
	Data      []byte
	Metadata  map[string]any
}

// Refuse is passed to each PostListener; calling it discards the image
// without calling further listeners or save_image.
type Refuse func(reason string)

// PostListener inspects a generated image and may refuse it.
type PostListener func(ctx context.Context, e PostGenerateEvent, refuse Refuse)

// Registry holds the ordered sets of pre/post listeners. Unlike the
// fire-and-forget, concurrent fan-out appropriate for notification
// channels, both phases here run listeners sequentially in registration
// order: a pre-generate UserError must short-circuit deterministically, and
// a post-generate refusal stops listeners registered after it from running.
type Registry struct {
	mu   sync.RWMutex
	pre  []PreListener
	post []PostListener
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddPre registers a pre-generate listener.
func (r *Registry) AddPre(l PreListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pre = append(r.pre, l)
}

// AddPost registers a post-generate listener.
func (r *Registry) AddPost(l PostListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.post = append(r.post, l)
}

// RunPre invokes every pre-generate listener in order, stopping at the
// first error. A plain error is wrapped as a UserError per spec §4.F
// ("A UserError from a listener aborts the request with its message").
func (r *Registry) RunPre(ctx context.Context, e PreGenerateEvent) error {
	r.mu.RLock()
	listeners := make([]PreListener, len(r.pre))
	copy(listeners, r.pre)
	r.mu.RUnlock()

	for _, l := range listeners {
		if err := l(ctx, e); err != nil {
			if de, ok := err.(*dispatch.Error); ok {
				return de
			}
			return &dispatch.Error{Kind: dispatch.KindUserError, Message: err.Error(), Cause: err}
		}
	}
	return nil
}

// RunPost invokes every post-generate listener in order. Once any listener
// refuses, RunPost stops invoking further listeners and returns the
// refusal reason.
func (r *Registry) RunPost(ctx context.Context, e PostGenerateEvent) (refused bool, reason string) {
	r.mu.RLock()
	listeners := make([]PostListener, len(r.post))
	copy(listeners, r.post)
	r.mu.RUnlock()

	refuseFn := func(why string) {
		refused = true
		reason = why
	}

	for _, l := range listeners {
		l(ctx, e, refuseFn)
		if refused {
			return refused, reason
		}
	}
	return refused, reason
}
