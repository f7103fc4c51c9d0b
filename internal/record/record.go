// Package record implements WorkerRecord, the per-worker state the
// Dispatcher matches requests against (spec §3, §4.B).
package record

import (
	"fmt"
	"sync"
)

// Status represents a WorkerRecord's lifecycle state.
type Status string

const (
	StatusDisabled Status = "disabled"
	StatusWaiting  Status = "waiting"
	StatusLoading  Status = "loading"
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusErrored  Status = "errored"
)

// IsTerminal reports whether s is Disabled, the state every record is left
// in on shutdown. Disabled is not a dead end in the transition table:
// Disabled -> Waiting is also a new record's entry point.
func (s Status) IsTerminal() bool {
	return s == StatusDisabled
}

// validTransitions encodes the state machine from spec §4.B:
//
//	Disabled -> Waiting -> Loading -> {Running, Idle, Errored}
//	Running  <-> Idle                       (health-driven)
//	any      -> Disabled                    (on shutdown)
//	Errored  -> Waiting                     (on retry)
//
// Running -> Errored is also permitted: the per-backend inactivity
// watchdog (spec §5) declares a worker failed out of Running when it holds
// a claim without emitting progress, which the table above otherwise
// reaches only from Loading.
var validTransitions = map[Status][]Status{
	StatusDisabled: {StatusWaiting},
	StatusWaiting:  {StatusLoading, StatusDisabled},
	StatusLoading:  {StatusRunning, StatusIdle, StatusErrored, StatusDisabled},
	StatusRunning:  {StatusIdle, StatusErrored, StatusDisabled},
	StatusIdle:     {StatusRunning, StatusDisabled},
	StatusErrored:  {StatusWaiting, StatusDisabled},
}

// CanTransition reports whether moving from -> to is permitted.
func CanTransition(from, to Status) bool {
	for _, target := range validTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Record is a single worker's state: status, current model, capability set,
// and the busy flag the Dispatcher compare-and-swaps during acquire/release.
//
// TryAcquire sets busy only on a Running record; a status change (such as
// the inactivity watchdog's Running -> Errored) can still happen while the
// record is busy, until its holder releases it. A Disabled or Errored
// record is never returned from the Dispatcher's matcher.
type Record struct {
	mu sync.Mutex

	id         string
	driverType string
	isReal     bool

	status        Status
	currentModel  string
	features      map[string]struct{}
	busy          bool
	outstanding   int // count of claims currently generating on this record; used for tie-breaking
	onStatusChange func(old, new Status)
}

// New creates a Record in StatusDisabled, matching the state machine's only
// valid entry point.
func New(id, driverType string, isReal bool) *Record {
	return &Record{
		id:         id,
		driverType: driverType,
		isReal:     isReal,
		status:     StatusDisabled,
		features:   make(map[string]struct{}),
	}
}

// ID returns the record's stable identifier.
func (r *Record) ID() string { return r.id }

// DriverType returns the tag naming the variant of Worker Driver.
func (r *Record) DriverType() string { return r.driverType }

// IsReal reports whether this is a directly-managed record (true) or a
// Federation Driver shadow (false).
func (r *Record) IsReal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isReal
}

// OnStatusChange registers a callback invoked (outside the lock) whenever
// SetStatus performs a successful transition. Used by the Dispatcher to
// wake its suspended Acquire calls so they re-scan (it closes and replaces a
// wake channel rather than using a condition variable).
func (r *Record) OnStatusChange(fn func(old, new Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStatusChange = fn
}

// Status returns the current status.
func (r *Record) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetStatus transitions the record to a new status. Returns an error if the
// transition is not permitted by the state machine.
func (r *Record) SetStatus(to Status) error {
	r.mu.Lock()
	from := r.status
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("record %s: invalid transition %s -> %s", r.id, from, to)
	}
	r.status = to
	cb := r.onStatusChange
	r.mu.Unlock()

	if cb != nil {
		cb(from, to)
	}
	return nil
}

// SetStatusSilent transitions the record like SetStatus but does not invoke
// the registered OnStatusChange callback. Used by callers (the Dispatcher's
// SetStatusMulti) that need to flip several records under one outer lock and
// fire a single broadcast afterward, rather than have each transition
// re-enter the dispatcher's own locking through the callback.
func (r *Record) SetStatusSilent(to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransition(r.status, to) {
		return fmt.Errorf("record %s: invalid transition %s -> %s", r.id, r.status, to)
	}
	r.status = to
	return nil
}

// CurrentModel returns the last model the driver confirmed loaded, or "" if
// none.
func (r *Record) CurrentModel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentModel
}

// SetCurrentModel records the last model the driver confirmed loaded.
func (r *Record) SetCurrentModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentModel = model
}

// Features returns a snapshot copy of the supported feature tags.
func (r *Record) Features() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.features))
	for f := range r.features {
		out[f] = struct{}{}
	}
	return out
}

// SetFeatures replaces the supported feature set, refreshed on status
// changes per spec §3.
func (r *Record) SetFeatures(features map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features = features
}

// HasFeature reports whether the record advertises the given capability tag.
func (r *Record) HasFeature(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.features[tag]
	return ok
}

// Busy reports whether a generation claim currently holds this record.
func (r *Record) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// TryAcquire atomically claims the record if it is Running and not already
// busy. Returns true on success. This is the single compare-and-swap per
// record the spec's concurrency model (§5) requires for linearizable busy
// transitions.
func (r *Record) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning || r.busy {
		return false
	}
	r.busy = true
	return true
}

// Release clears the busy flag. Safe to call from any state; a driver must
// never leave a record busy on any exit path (spec §4.A).
func (r *Record) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
}

// Outstanding returns the number of claims currently referencing this
// record, used by the Dispatcher's matching algorithm to break ties toward
// the least-contended worker.
func (r *Record) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outstanding
}

// AddOutstanding adjusts the outstanding-claim counter by delta.
func (r *Record) AddOutstanding(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outstanding += delta
}

// Snapshot is an immutable point-in-time copy of a Record's matchable
// fields, used by the Dispatcher under its pool lock (spec §9: "the
// Dispatcher reads via a snapshot taken under the pool lock").
type Snapshot struct {
	ID           string
	DriverType   string
	IsReal       bool
	Status       Status
	CurrentModel string
	Features     map[string]struct{}
	Busy         bool
	Outstanding  int
}

// Snapshot captures the record's current matchable state.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	features := make(map[string]struct{}, len(r.features))
	for f := range r.features {
		features[f] = struct{}{}
	}
	return Snapshot{
		ID:           r.id,
		DriverType:   r.driverType,
		IsReal:       r.isReal,
		Status:       r.status,
		CurrentModel: r.currentModel,
		Features:     features,
		Busy:         r.busy,
		Outstanding:  r.outstanding,
	}
}

// HasFeature reports whether the snapshot advertises the given capability.
func (s Snapshot) HasFeature(tag string) bool {
	_, ok := s.Features[tag]
	return ok
}
