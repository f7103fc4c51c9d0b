// Package pipeline implements the Generation Pipeline: the per-request
// lifecycle that opens a claim, acquires a worker, streams a generation,
// and applies metadata/storage around each accepted image (spec §4.F).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dispatchd/dispatchd/internal/claim"
	"github.com/dispatchd/dispatchd/internal/dispatch"
	"github.com/dispatchd/dispatchd/internal/driver"
	"github.com/dispatchd/dispatchd/internal/events"
	"github.com/dispatchd/dispatchd/internal/hooks"
	"github.com/dispatchd/dispatchd/internal/record"
	"github.com/dispatchd/dispatchd/pkg/imaging"
)

// Request is a caller-submitted generation request.
type Request struct {
	ID        string
	Prompt    string
	NumImages int
	ModelID   string
	DoNotSave bool
	Params    map[string]any
	// Filter is the capability predicate the Dispatcher applies when
	// matching a worker (spec §4.D).
	Filter func(record.Snapshot) bool
}

// Config configures a Pipeline.
type Config struct {
	// AcquireTimeout bounds time spent waiting for a worker, queueing
	// inclusive (per_request_timeout_minutes, default one week).
	AcquireTimeout time.Duration
	// BackendTimeout is the per-backend inactivity threshold
	// (max_timeout_minutes, default 20 minutes).
	BackendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 7 * 24 * time.Hour
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = 20 * time.Minute
	}
	return c
}

// Pipeline owns request execution against a Dispatcher and a hook Registry.
type Pipeline struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	hooks      *hooks.Registry
	bus        *events.Bus
}

// New constructs a Pipeline.
func New(cfg Config, dispatcher *dispatch.Dispatcher, registry *hooks.Registry, bus *events.Bus) *Pipeline {
	return &Pipeline{cfg: cfg.withDefaults(), dispatcher: dispatcher, hooks: registry, bus: bus}
}

// Result summarizes a completed run.
type Result struct {
	NumGenerated int
	SavedRefs    []string
	TimingReport string
}

func (p *Pipeline) emit(e events.Event) {
	if p.bus != nil {
		p.bus.Emit(e)
	}
}

// Run executes the full pipeline for req, returning once the terminal
// image set has been produced and saved, or a terminal error occurs. c is
// the caller's Claim; session applies metadata and persists accepted
// images. Run balances every counter it extends on c, on every exit path,
// including redirects and cancellation (spec §4.F, §9 invariant: "after
// completion, c.waits = c.live = c.gens = 0").
func (p *Pipeline) Run(ctx context.Context, req Request, batchID string, c *claim.Claim, session imaging.Session) (Result, error) {
	current := req
	redirects := 0
	var prepTotal, genTotal time.Duration
	numGenerated := 0
	var savedRefs []string

	defer func() {
		// Balance the gens counter accumulated across any redirects. live
		// is completed per-attempt inside the loop below, so by the time
		// we reach here it is already zero; completing it again would
		// underflow, so only gens is settled here.
		if redirects > 0 {
			c.Complete(claim.KindGens, redirects)
		}
	}()

	for {
		if err := p.preGenerate(ctx, req.ID, current); err != nil {
			return Result{}, err
		}

		access, prepElapsed, err := p.acquire(ctx, req.ID, current, c)
		if err != nil {
			return Result{}, err
		}
		prepTotal += prepElapsed

		genElapsed, redirectReq, genErr := p.generate(ctx, req, current, batchID, c, access, session, &numGenerated, &savedRefs)
		genTotal += genElapsed

		if genErr != nil {
			if derr, ok := genErr.(*dispatch.Error); ok && derr.Kind == dispatch.KindRedirect {
				redirects++
				if err := c.Extend(claim.KindGens, 1); err != nil {
					return Result{}, err
				}
				target, ok := redirectReq.(driver.GenerateRequest)
				if !ok {
					return Result{}, dispatch.NewError(dispatch.KindInternalError, "redirect carried an unrecognized request type")
				}
				// Carry the identity/filter forward from the original
				// caller request; only the generation payload itself
				// comes from the driver's redirect.
				current = Request{
					ID:        req.ID,
					Prompt:    target.Prompt,
					NumImages: target.NumImages,
					ModelID:   target.ModelID,
					DoNotSave: target.DoNotSave,
					Params:    target.Params,
					Filter:    current.Filter,
				}
				continue
			}
			return Result{}, genErr
		}

		return Result{
			NumGenerated: numGenerated,
			SavedRefs:    savedRefs,
			TimingReport: timingReport(prepTotal, genTotal, numGenerated),
		}, nil
	}
}

func (p *Pipeline) preGenerate(ctx context.Context, requestID string, req Request) error {
	return p.hooks.RunPre(ctx, hooks.PreGenerateEvent{RequestID: requestID, Prompt: req.Prompt, Params: req.Params})
}

func (p *Pipeline) acquire(ctx context.Context, requestID string, req Request, c *claim.Claim) (*dispatch.WorkerAccess, time.Duration, error) {
	if err := c.Extend(claim.KindWaits, 1); err != nil {
		return nil, 0, err
	}
	p.emit(events.NewEvent(events.RequestQueued).WithRequest(requestID))

	start := time.Now()
	access, err := p.dispatcher.Acquire(ctx, req.Filter, req.ModelID, p.cfg.AcquireTimeout, c.Cancelled(), func() {
		p.emit(events.NewEvent(events.RequestWillLoad).WithRequest(requestID))
	})
	elapsed := time.Since(start)
	c.Complete(claim.KindWaits, 1)

	if err != nil {
		return nil, elapsed, err
	}
	p.emit(events.NewEvent(events.RequestAcquired).WithRequest(requestID).WithBackend(access.RecordID()))
	return access, elapsed, nil
}

// generate runs one generate_stream attempt against an already-acquired
// worker, handling the per-image phase inline as images arrive, and always
// releasing the worker and completing claim.live before returning.
func (p *Pipeline) generate(
	ctx context.Context,
	req Request,
	current Request,
	batchID string,
	c *claim.Claim,
	access *dispatch.WorkerAccess,
	session imaging.Session,
	numGenerated *int,
	savedRefs *[]string,
) (time.Duration, any, error) {
	drv, ok := access.Driver().(driver.Driver)
	if !ok {
		access.Release()
		return 0, nil, dispatch.NewError(dispatch.KindInternalError, "acquired driver does not support streaming generation")
	}

	if current.ModelID != "" && access.Record().CurrentModel() != current.ModelID {
		if _, err := drv.LoadModel(ctx, current.ModelID); err != nil {
			access.Release()
			return 0, nil, dispatch.Wrap(dispatch.KindInternalError, err)
		}
		access.Record().SetCurrentModel(current.ModelID)
	}

	if err := c.Extend(claim.KindLive, 1); err != nil {
		access.Release()
		return 0, nil, err
	}
	access.Record().AddOutstanding(1)

	genCtx, watchdogCancel, lastProgress := p.withInactivityWatchdog(ctx, access)
	defer watchdogCancel()

	stopClaimWatch := make(chan struct{})
	defer close(stopClaimWatch)
	go func() {
		select {
		case <-c.Cancelled():
			watchdogCancel()
		case <-stopClaimWatch:
		}
	}()

	sink := &pipelineSink{
		ctx:          genCtx,
		pipeline:     p,
		requestID:    req.ID,
		session:      session,
		current:      current,
		numGenerated: numGenerated,
		savedRefs:    savedRefs,
		lastProgress: lastProgress,
	}

	p.emit(events.NewEvent(events.RequestGenerating).WithRequest(req.ID).WithBackend(access.RecordID()))
	start := time.Now()
	err := drv.GenerateStream(genCtx, driver.GenerateRequest{
		Prompt:    current.Prompt,
		NumImages: current.NumImages,
		DoNotSave: current.DoNotSave,
		ModelID:   current.ModelID,
		Params:    current.Params,
	}, batchID, sink)
	elapsed := time.Since(start)

	c.Complete(claim.KindLive, 1)
	access.Record().AddOutstanding(-1)

	if err == nil && sink.saveErr != nil {
		err = dispatch.Wrap(dispatch.KindInternalError, sink.saveErr)
	}

	if err != nil && genCtx.Err() != nil && !dispatch.IsKind(err, dispatch.KindRedirect) {
		// The watchdog (or caller cancellation) fired; surface the more
		// specific error rather than whatever the driver returned for a
		// context it no longer controls.
		if p.watchdogExpired(genCtx) {
			_ = access.Record().SetStatus(record.StatusErrored)
			access.Release()
			p.emit(events.NewEvent(events.BackendStalled).WithBackend(access.RecordID()).WithRequest(req.ID))
			return elapsed, nil, dispatch.NewError(dispatch.KindBackendStalled, "")
		}
		access.Release()
		return elapsed, nil, dispatch.NewError(dispatch.KindCancelledError, "")
	}

	var redirectReq any
	if derr, ok := err.(*dispatch.Error); ok && derr.Kind == dispatch.KindRedirect {
		redirectReq = derr.RedirectRequest
	}

	access.Release()

	if err != nil {
		return elapsed, redirectReq, err
	}
	p.emit(events.NewEvent(events.RequestCompleted).WithRequest(req.ID).WithBackend(access.RecordID()))
	return elapsed, nil, nil
}

func timingReport(prep, gen time.Duration, numGenerated int) string {
	prepSeconds := prep.Seconds()
	genSeconds := gen.Seconds()
	if numGenerated > 1 {
		prepSeconds /= float64(numGenerated)
		genSeconds /= float64(numGenerated)
	}
	return fmt.Sprintf("%.2f (prep) and %.2f (gen) seconds", prepSeconds, genSeconds)
}
