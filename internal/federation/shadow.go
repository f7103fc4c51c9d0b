package federation

import (
	"context"
	"time"

	"github.com/dispatchd/dispatchd/internal/dispatch"
	"github.com/dispatchd/dispatchd/internal/driver"
	"github.com/dispatchd/dispatchd/internal/events"
	"github.com/dispatchd/dispatchd/internal/record"
)

// shadowDrainPoll is how often removeShadow checks whether a to-be-trimmed
// shadow's in-flight claims have drained before removing it from the pool
// (spec §9's open question: "safe implementations should wait").
const shadowDrainPoll = 50 * time.Millisecond

// shadowDriver is the Worker Driver registered for each synthesized shadow
// record. It holds no connection of its own: every operation forwards to
// the parent Driver, which owns the one session shared across the parent
// record and all its shadows (spec §4.E: "each shadow record shares
// settings with the parent driver").
type shadowDriver struct {
	parent *Driver
}

func (s *shadowDriver) Init(ctx context.Context) error { return nil }

func (s *shadowDriver) Shutdown(ctx context.Context) error { return nil }

func (s *shadowDriver) LoadModel(ctx context.Context, modelID string) (bool, error) {
	return true, nil
}

func (s *shadowDriver) SupportedFeatures() map[string]struct{} {
	return s.parent.SupportedFeatures()
}

func (s *shadowDriver) DesiredStatus() record.Status {
	return s.parent.DesiredStatus()
}

func (s *shadowDriver) GenerateStream(ctx context.Context, req driver.GenerateRequest, batchID string, sink driver.Sink) error {
	return s.parent.GenerateStream(ctx, req, batchID, sink)
}

var _ driver.Driver = (*shadowDriver)(nil)
var _ dispatch.StatusReporter = (*shadowDriver)(nil)

// syncShadows recomputes target = max(0, remote_count - 1 + over_queue) and
// adds or trims shadow_records to match (spec §3, §4.E). Trimming removes
// from the front of the sequence, per spec and DESIGN.md's resolution of
// the open question on draining in-flight claims first.
func (d *Driver) syncShadows(ctx context.Context) {
	d.mu.Lock()
	target := d.remoteCount - 1 + d.cfg.OverQueue
	if target < 0 {
		target = 0
	}
	current := len(d.shadowIDs)
	d.mu.Unlock()

	switch {
	case target > current:
		for i := 0; i < target-current; i++ {
			d.addShadow()
		}
	case target < current:
		d.mu.Lock()
		toRemove := append([]string(nil), d.shadowIDs[:current-target]...)
		d.shadowIDs = append([]string(nil), d.shadowIDs[current-target:]...)
		d.mu.Unlock()
		for _, id := range toRemove {
			d.removeShadow(ctx, id)
		}
	}

	d.mu.Lock()
	count := len(d.shadowIDs)
	d.mu.Unlock()
	d.emit(events.NewEvent(events.FederationShadowResize).WithBackend(d.recID).WithPayload(map[string]int{
		"target": target,
		"count":  count,
	}))
}

// addShadow creates one new shadow record sharing this driver's settings
// and registers it with the dispatcher in the ordinary Disabled -> Waiting
// entry point, so the dispatcher's own init-retry loop promotes it to
// Running/Idle via shadowDriver.Init (a no-op) and DesiredStatus, keeping
// shadow records subject to exactly the same state machine as real ones.
func (d *Driver) addShadow() {
	id := d.cfg.IDGenerator()
	rec := record.New(id, d.cfg.DriverType, false)
	d.dispatcher.Add(rec, &shadowDriver{parent: d})
	_ = rec.SetStatus(record.StatusWaiting)

	d.mu.Lock()
	d.shadowIDs = append(d.shadowIDs, id)
	d.mu.Unlock()
}

// removeShadow waits for the shadow's outstanding claim count to reach
// zero, then removes it from the dispatcher's pool.
func (d *Driver) removeShadow(ctx context.Context, id string) {
	rec, ok := d.dispatcher.Record(id)
	if !ok {
		return
	}

	ticker := time.NewTicker(shadowDrainPoll)
	defer ticker.Stop()
waitDrain:
	for rec.Outstanding() > 0 {
		select {
		case <-ctx.Done():
			break waitDrain
		case <-ticker.C:
		}
	}

	d.dispatcher.Remove(id)
}

// ShadowRecordIDs returns a snapshot of the shadow record IDs currently
// synthesized by this driver, for diagnostics and tests.
func (d *Driver) ShadowRecordIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.shadowIDs))
	copy(out, d.shadowIDs)
	return out
}

// RemoteCount returns the last-observed number of Running sub-workers on
// the peer.
func (d *Driver) RemoteCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.remoteCount
}

// RunIdleMonitor re-probes the peer on cfg.IdleProbeInterval while the
// driver is Idle, flipping the driver and every shadow back to Running
// atomically the moment the peer becomes reachable again (spec §4.E). It
// returns when ctx is cancelled.
func (d *Driver) RunIdleMonitor(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.IdleProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.isIdle() {
				continue
			}
			if err := d.refresh(ctx); err != nil {
				continue
			}
			d.setIdle(false)
		}
	}
}
