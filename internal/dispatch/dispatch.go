// Package dispatch implements the Dispatcher: the component that matches
// requests to workers, enforces at-most-one-generation-per-worker, and
// drives the pool's init-retry loop (spec §4.D).
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dispatchd/dispatchd/internal/events"
	"github.com/dispatchd/dispatchd/internal/record"
)

// Initializer is the subset of the Worker Driver contract the Dispatcher
// itself calls directly. It is defined here (rather than importing
// internal/driver) so the two packages don't depend on each other: the
// Dispatcher only ever needs to bring a driver up, never to stream a
// generation through it. The concrete driver passed to Add still satisfies
// the full internal/driver.Driver interface; pipeline code recovers it via
// WorkerAccess.Driver() and a type assertion.
type Initializer interface {
	Init(ctx context.Context) error
	SupportedFeatures() map[string]struct{}
}

// StatusReporter is an optional extension a driver may implement when a
// successful Init should land the record somewhere other than Running — the
// Federation Driver reports Idle when its peer was unreachable at init but
// allow_idle permits degrading gracefully instead of erroring (spec §4.E).
// Drivers that don't implement it are assumed to always want Running.
type StatusReporter interface {
	DesiredStatus() record.Status
}

// Config configures a Dispatcher.
type Config struct {
	MaxInitAttempts int
	Retry           RetryConfig
	Events          *events.Bus
	// ScanInterval controls how often the background loop looks for
	// Waiting/Errored records to (re)initialize.
	ScanInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxInitAttempts <= 0 {
		c.MaxInitAttempts = 3
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = DefaultRetryConfig
		c.Retry.MaxAttempts = c.MaxInitAttempts
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 200 * time.Millisecond
	}
	return c
}

// Dispatcher holds the pool of Worker Records and matches acquire() calls
// against them under a single lock, per spec §5 ("the record map is
// read-mostly and guarded by a single lock").
type Dispatcher struct {
	cfg Config

	mu           sync.Mutex
	records      map[string]*record.Record
	drivers      map[string]Initializer
	initInFlight map[string]bool
	wake         chan struct{}
}

// New constructs an empty Dispatcher.
func New(cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:          cfg,
		records:      make(map[string]*record.Record),
		drivers:      make(map[string]Initializer),
		initInFlight: make(map[string]bool),
		wake:         make(chan struct{}),
	}
}

func (d *Dispatcher) emit(e events.Event) {
	if d.cfg.Events != nil {
		d.cfg.Events.Emit(e)
	}
}

// broadcastLocked wakes every Acquire call currently suspended, by closing
// the current wake channel and replacing it. Callers must hold d.mu.
func (d *Dispatcher) broadcastLocked() {
	close(d.wake)
	d.wake = make(chan struct{})
}

// Add registers a new record and its driver, and arranges for the record's
// own status transitions to broadcast to waiters (spec §4.B: set_status
// "broadcasts a condition variable so waiters re-scan").
func (d *Dispatcher) Add(rec *record.Record, drv Initializer) {
	rec.OnStatusChange(func(_, _ record.Status) {
		d.mu.Lock()
		d.broadcastLocked()
		d.mu.Unlock()
	})

	d.mu.Lock()
	d.records[rec.ID()] = rec
	d.drivers[rec.ID()] = drv
	d.broadcastLocked()
	d.mu.Unlock()

	d.emit(events.NewEvent(events.BackendAdded).WithBackend(rec.ID()))
}

// Remove drops a record from the pool and broadcasts to waiters.
func (d *Dispatcher) Remove(id string) {
	d.mu.Lock()
	delete(d.records, id)
	delete(d.drivers, id)
	d.broadcastLocked()
	d.mu.Unlock()

	d.emit(events.NewEvent(events.BackendRemoved).WithBackend(id))
}

// Record returns the record registered under id, if any.
func (d *Dispatcher) Record(id string) (*record.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	return rec, ok
}

// Records returns a snapshot slice of every record currently in the pool,
// for diagnostics and control-plane listing (apiv1.ListWorkers).
func (d *Dispatcher) Records() []*record.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*record.Record, 0, len(d.records))
	for _, rec := range d.records {
		out = append(out, rec)
	}
	return out
}

// SetStatusMulti transitions every named record to the same status as one
// atomic step from Acquire's perspective: the pool lock is held for the
// whole batch and each record is transitioned silently (no broadcast, no
// OnStatusChange re-entry), with a single broadcast at the end. This is what
// gives the Federation Driver's idle/running flip across a driver and its
// shadows the all-or-nothing visibility spec §4.E requires ("observers see
// either all-Running or all-Idle"); unknown ids are skipped rather than
// erroring, since a shadow may have been trimmed concurrently.
func (d *Dispatcher) SetStatusMulti(ids []string, to record.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		if rec, ok := d.records[id]; ok {
			_ = rec.SetStatusSilent(to)
		}
	}
	d.broadcastLocked()
}

// WorkerAccess is the scoped handle Acquire returns. Release must be called
// exactly once on every exit path; it restores busy=false and broadcasts to
// waiters regardless of how the caller's generation ended.
type WorkerAccess struct {
	dispatcher *Dispatcher
	rec        *record.Record
	driver     Initializer

	released bool
	mu       sync.Mutex
}

// RecordID returns the acquired record's identifier.
func (w *WorkerAccess) RecordID() string { return w.rec.ID() }

// Driver returns the driver associated with the acquired record. Callers
// that need the full internal/driver.Driver surface (GenerateStream, in
// particular) type-assert the result.
func (w *WorkerAccess) Driver() Initializer { return w.driver }

// Record returns the underlying Worker Record, e.g. so the pipeline can
// touch AddOutstanding for tie-break accounting.
func (w *WorkerAccess) Record() *record.Record { return w.rec }

// Release clears busy and wakes any suspended Acquire calls. Safe to call
// more than once; only the first call has effect.
func (w *WorkerAccess) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return
	}
	w.released = true

	w.rec.Release()
	w.dispatcher.mu.Lock()
	w.dispatcher.broadcastLocked()
	w.dispatcher.mu.Unlock()
}

// candidate pairs a record with the snapshot taken while scanning, so the
// tie-break comparison doesn't need to re-read under lock.
type candidate struct {
	rec  *record.Record
	snap record.Snapshot
}

func pickLowestOutstanding(cands []candidate) *candidate {
	if len(cands) == 0 {
		return nil
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].snap.Outstanding != cands[j].snap.Outstanding {
			return cands[i].snap.Outstanding < cands[j].snap.Outstanding
		}
		return cands[i].snap.ID < cands[j].snap.ID
	})
	return &cands[0]
}

// Acquire implements the matching algorithm from spec §4.D. filter is a
// capability predicate over a record snapshot; preferredModel breaks ties
// toward a worker that already has it loaded; onWillLoad is invoked at most
// once, the moment the Dispatcher is about to pick a worker that needs a
// model (re)load.
func (d *Dispatcher) Acquire(
	ctx context.Context,
	filter func(record.Snapshot) bool,
	preferredModel string,
	timeout time.Duration,
	cancelled <-chan struct{},
	onWillLoad func(),
) (*WorkerAccess, error) {
	deadline := time.Now().Add(timeout)
	willLoadCalled := false

	for {
		select {
		case <-cancelled:
			return nil, NewError(KindCancelledError, "")
		case <-ctx.Done():
			return nil, NewError(KindCancelledError, "")
		default:
		}

		d.mu.Lock()
		var a, b []candidate
		for _, rec := range d.records {
			snap := rec.Snapshot()
			if snap.Status != record.StatusRunning || snap.Busy || !filter(snap) {
				continue
			}
			if preferredModel != "" && snap.CurrentModel == preferredModel {
				a = append(a, candidate{rec: rec, snap: snap})
			} else {
				b = append(b, candidate{rec: rec, snap: snap})
			}
		}

		if pick := pickLowestOutstanding(a); pick != nil {
			if pick.rec.TryAcquire() {
				drv := d.drivers[pick.rec.ID()]
				d.mu.Unlock()
				return &WorkerAccess{dispatcher: d, rec: pick.rec, driver: drv}, nil
			}
			// Lost the compare-and-swap race; re-snapshot immediately.
			d.mu.Unlock()
			continue
		}

		if pick := pickLowestOutstanding(b); pick != nil {
			needsSignal := !willLoadCalled
			willLoadCalled = true
			d.mu.Unlock()
			if needsSignal && onWillLoad != nil {
				onWillLoad()
			}

			d.mu.Lock()
			if pick.rec.TryAcquire() {
				drv := d.drivers[pick.rec.ID()]
				d.mu.Unlock()
				return &WorkerAccess{dispatcher: d, rec: pick.rec, driver: drv}, nil
			}
			d.mu.Unlock()
			continue
		}

		// Nothing matches right now: suspend until the next broadcast,
		// the deadline, or cancellation.
		wake := d.wake
		d.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, NewError(KindTimeoutError, "")
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wake:
			timer.Stop()
		case <-timer.C:
			return nil, NewError(KindTimeoutError, "")
		case <-cancelled:
			timer.Stop()
			return nil, NewError(KindCancelledError, "")
		case <-ctx.Done():
			timer.Stop()
			return nil, NewError(KindCancelledError, "")
		}
	}
}

// Run drives the background init-retry loop until ctx is cancelled,
// scanning for Waiting or Errored records and (re)initializing them up to
// MaxInitAttempts times (spec §4.D).
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scanForInit(ctx)
		}
	}
}

func (d *Dispatcher) scanForInit(ctx context.Context) {
	d.mu.Lock()
	var due []*record.Record
	for id, rec := range d.records {
		if d.initInFlight[id] {
			continue
		}
		switch rec.Status() {
		case record.StatusWaiting, record.StatusErrored:
			d.initInFlight[id] = true
			due = append(due, rec)
		}
	}
	d.mu.Unlock()

	for _, rec := range due {
		go d.initRecord(ctx, rec)
	}
}

func (d *Dispatcher) initRecord(ctx context.Context, rec *record.Record) {
	defer func() {
		d.mu.Lock()
		delete(d.initInFlight, rec.ID())
		d.mu.Unlock()
	}()

	if rec.Status() == record.StatusErrored {
		_ = rec.SetStatus(record.StatusWaiting)
	}
	if err := rec.SetStatus(record.StatusLoading); err != nil {
		return
	}
	d.emit(events.NewEvent(events.BackendLoading).WithBackend(rec.ID()))

	d.mu.Lock()
	drv := d.drivers[rec.ID()]
	d.mu.Unlock()
	if drv == nil {
		_ = rec.SetStatus(record.StatusErrored)
		return
	}

	retryCfg := d.cfg.Retry
	retryCfg.MaxAttempts = d.cfg.MaxInitAttempts
	result := retryWithBackoff(ctx, retryCfg, drv.Init)

	if !result.Success {
		_ = rec.SetStatus(record.StatusErrored)
		d.emit(events.NewEvent(events.BackendErrored).WithBackend(rec.ID()).WithError(result.LastErr))
		return
	}

	target := record.StatusRunning
	if sr, ok := drv.(StatusReporter); ok {
		target = sr.DesiredStatus()
	}

	rec.SetFeatures(drv.SupportedFeatures())
	_ = rec.SetStatus(target)
	if target == record.StatusIdle {
		d.emit(events.NewEvent(events.FederationIdle).WithBackend(rec.ID()))
	} else {
		d.emit(events.NewEvent(events.BackendRunning).WithBackend(rec.ID()))
	}
}
