// Package federation implements the Federation Driver: a Worker Driver that
// mirrors a peer instance's pool into the local pool by synthesizing shadow
// Worker Records, one per spare concurrency slot on the peer (spec §4.E).
package federation

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dispatchd/dispatchd/internal/dispatch"
	"github.com/dispatchd/dispatchd/internal/driver"
	"github.com/dispatchd/dispatchd/internal/events"
	"github.com/dispatchd/dispatchd/internal/record"
)

// Config configures a Driver against one peer instance.
type Config struct {
	// Address is the peer's base HTTP endpoint, e.g. "http://peer:7860".
	Address string
	// AllowIdle lets a driver degrade to Idle instead of Errored when the
	// peer is unreachable at init (spec §4.E).
	AllowIdle bool
	// OverQueue adds extra shadow slots beyond the peer's reported headroom
	// (spec §3: shadow_records = max(0, remote_count - 1 + over_queue)).
	OverQueue int
	// LocalLoopID is this process's own loop-prevention identifier. If a
	// peer's session/new response echoes it back, the peer is this process
	// (directly or transitively) and Init fails fatally (spec §4.E).
	LocalLoopID string
	// DriverType tags both this driver's own record and every shadow record
	// it synthesizes.
	DriverType string

	HTTPClient *http.Client
	WSDialer   *websocket.Dialer

	// IdleProbeInterval is the re-probe cadence while Idle (default 10s).
	IdleProbeInterval time.Duration
	// LoadingPollInterval is the re-query cadence while any peer sub-worker
	// reports Loading (spec §4.E: "re-queries every ~1 second").
	LoadingPollInterval time.Duration

	IDGenerator func() string
}

func (c Config) withDefaults() Config {
	if c.IdleProbeInterval <= 0 {
		c.IdleProbeInterval = 10 * time.Second
	}
	if c.LoadingPollInterval <= 0 {
		c.LoadingPollInterval = 1 * time.Second
	}
	if c.DriverType == "" {
		c.DriverType = "federation"
	}
	if c.IDGenerator == nil {
		c.IDGenerator = func() string { return uuid.NewString() }
	}
	return c
}

// Driver is a Worker Driver that speaks the federation wire protocol (spec
// §6) to one peer, and synthesizes shadow Worker Records mirroring that
// peer's spare concurrency.
type Driver struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus

	recID string // the parent record ID, set once by the dispatcher wiring path.

	mu                 sync.Mutex
	sessionID          string
	remoteFeatures     map[string]struct{}
	remoteBackendTypes map[string]struct{}
	anyLoading         bool
	remoteCount        int
	shadowIDs          []string
	idle               bool
}

// New constructs a Federation Driver. recordID must be the ID of the
// WorkerRecord this driver will be registered under (the caller creates
// both together, mirroring how internal/driver.HTTPDriver pairs with its
// own record at wiring time).
func New(cfg Config, recordID string, dispatcher *dispatch.Dispatcher, bus *events.Bus) *Driver {
	cfg = cfg.withDefaults()
	return &Driver{
		cfg:                cfg,
		dispatcher:         dispatcher,
		bus:                bus,
		recID:              recordID,
		remoteFeatures:     make(map[string]struct{}),
		remoteBackendTypes: make(map[string]struct{}),
	}
}

func (d *Driver) emit(e events.Event) {
	if d.bus != nil {
		d.bus.Emit(e)
	}
}

// Init establishes a session with the peer, detects loop-back, refreshes
// the backend list, and blocks until no peer sub-worker reports Loading
// (spec §4.E). On a successful return the Dispatcher transitions this
// driver's record to Running or, via DesiredStatus, Idle.
func (d *Driver) Init(ctx context.Context) error {
	if err := d.establishSession(ctx); err != nil {
		// Loop detection and plain unreachability are both "can't use this
		// peer right now" from Init's perspective: either degrades to Idle
		// under allow_idle, or fails the same way (spec §8 scenario 5:
		// "init transitions to Errored (or Idle if allow_idle)"). Neither
		// path calls refresh, so no shadow records are ever created.
		if d.cfg.AllowIdle {
			d.setIdle(true)
			return nil
		}
		return err
	}

	for {
		if err := d.refresh(ctx); err != nil {
			if dispatch.IsKind(err, dispatch.KindConnectionError) && d.cfg.AllowIdle {
				d.setIdle(true)
				return nil
			}
			return err
		}
		d.setIdle(false)

		if !d.snapshotAnyLoading() {
			return nil
		}

		select {
		case <-ctx.Done():
			return dispatch.NewError(dispatch.KindCancelledError, "")
		case <-time.After(d.cfg.LoadingPollInterval):
		}
	}
}

type loopDetectedError struct{ serverID string }

func (e *loopDetectedError) Error() string {
	return fmt.Sprintf("federation loop detected: peer server_id %q matches local loop id", e.serverID)
}

// establishSession calls session/new and records the session id, failing
// fatally on loop detection per spec §4.E and §8's loop-detection law.
func (d *Driver) establishSession(ctx context.Context) error {
	resp, err := d.wireSessionNew(ctx)
	if err != nil {
		return dispatch.Wrap(dispatch.KindConnectionError, err)
	}

	if d.cfg.LocalLoopID != "" && resp.ServerID == d.cfg.LocalLoopID {
		d.emit(events.NewEvent(events.FederationLoopDetected).WithBackend(d.recID))
		return dispatch.Wrap(dispatch.KindInternalError, &loopDetectedError{serverID: resp.ServerID})
	}

	d.mu.Lock()
	d.sessionID = resp.SessionID
	d.mu.Unlock()
	d.emit(events.NewEvent(events.FederationSessionNew).WithBackend(d.recID))
	return nil
}

// refresh calls backends/list, wrapped in the session-recovery retry (spec
// §4.E), updates the driver's federation state, and resizes shadow_records.
func (d *Driver) refresh(ctx context.Context) error {
	list, err := sessionRecovery(ctx, d, func(ctx context.Context) ([]backendInfo, error) {
		d.mu.Lock()
		sid := d.sessionID
		d.mu.Unlock()
		return d.wireBackendsList(ctx, sid)
	})
	if err != nil {
		return err
	}

	features := make(map[string]struct{})
	types := make(map[string]struct{})
	running := 0
	loading := false
	for _, b := range list {
		switch b.Status {
		case "running":
			running++
		case "loading":
			loading = true
		}
		if b.Status == "running" || b.Status == "loading" {
			types[b.Type] = struct{}{}
			for _, f := range b.Features {
				features[f] = struct{}{}
			}
		}
	}

	d.mu.Lock()
	d.remoteFeatures = features
	d.remoteBackendTypes = types
	d.remoteCount = running
	d.anyLoading = loading
	d.mu.Unlock()

	d.syncShadows(ctx)
	return nil
}

// sessionRecovery wraps one peer operation with the session-recovery
// protocol from spec §4.E: on SessionInvalid it re-establishes the session
// (calling init) and retries exactly once; a second invalidation surfaces as
// ConnectionError rather than recursing.
func sessionRecovery[T any](ctx context.Context, d *Driver, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := op(ctx)
	if err == nil || !dispatch.IsKind(err, dispatch.KindSessionInvalid) {
		return result, err
	}

	d.emit(events.NewEvent(events.FederationSessionExpire).WithBackend(d.recID))
	if sessErr := d.establishSession(ctx); sessErr != nil {
		var zero T
		return zero, dispatch.Wrap(dispatch.KindConnectionError, sessErr)
	}

	result, err = op(ctx)
	if err != nil && dispatch.IsKind(err, dispatch.KindSessionInvalid) {
		var zero T
		return zero, dispatch.NewError(dispatch.KindConnectionError, "session invalid again after one recovery retry")
	}
	return result, err
}

func (d *Driver) snapshotAnyLoading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.anyLoading
}

func (d *Driver) setIdle(idle bool) {
	d.mu.Lock()
	changed := d.idle != idle
	d.idle = idle
	ids := append([]string{d.recID}, d.shadowIDs...)
	d.mu.Unlock()

	if !changed {
		return
	}
	target := record.StatusRunning
	if idle {
		target = record.StatusIdle
	}
	// SetStatusMulti flips every listed record for which the transition is
	// permitted and skips the rest. During the very first Init the parent
	// record is still Loading, so Loading -> Idle happens here; the
	// dispatcher's own later transition to DesiredStatus then finds the
	// record already Idle.
	d.dispatcher.SetStatusMulti(ids, target)
}

// isIdle reports the driver's last-observed idle state.
func (d *Driver) isIdle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle
}

// DesiredStatus implements dispatch.StatusReporter.
func (d *Driver) DesiredStatus() record.Status {
	if d.isIdle() {
		return record.StatusIdle
	}
	return record.StatusRunning
}

// Shutdown tears down the session and drops every shadow record. Unlike
// EnsureQueueSizeCorrect's ordinary downsizing path, shutdown does not wait
// for shadows to drain: the process is already tearing down and no new
// claims can complete regardless.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	ids := d.shadowIDs
	d.shadowIDs = nil
	d.sessionID = ""
	d.mu.Unlock()

	for _, id := range ids {
		d.dispatcher.Remove(id)
	}
	return nil
}

// LoadModel is a no-op: the peer selects its own model per sub-worker: the
// local dispatcher never drives a peer's model loading directly.
func (d *Driver) LoadModel(ctx context.Context, modelID string) (bool, error) {
	return true, nil
}

// SupportedFeatures returns the capability tags observed on the peer's
// reachable sub-workers.
func (d *Driver) SupportedFeatures() map[string]struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]struct{}, len(d.remoteFeatures))
	for f := range d.remoteFeatures {
		out[f] = struct{}{}
	}
	return out
}

// GenerateStream forwards req to the peer over the generate-ws endpoint,
// wrapped in the session-recovery retry.
func (d *Driver) GenerateStream(ctx context.Context, req driver.GenerateRequest, batchID string, sink driver.Sink) error {
	_, err := sessionRecovery(ctx, d, func(ctx context.Context) (struct{}, error) {
		d.mu.Lock()
		sid := d.sessionID
		d.mu.Unlock()
		return struct{}{}, d.wireGenerateWS(ctx, sid, req, batchID, sink)
	})
	return err
}

var _ driver.Driver = (*Driver)(nil)
var _ dispatch.StatusReporter = (*Driver)(nil)
