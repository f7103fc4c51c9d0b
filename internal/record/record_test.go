package record

import "testing"

func TestNew_StartsDisabled(t *testing.T) {
	r := New("gpu-0", "local", true)
	if r.Status() != StatusDisabled {
		t.Errorf("expected StatusDisabled, got %s", r.Status())
	}
	if r.ID() != "gpu-0" || r.DriverType() != "local" || !r.IsReal() {
		t.Error("constructor did not set identity fields")
	}
}

func TestCanTransition_Table(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDisabled, StatusWaiting, true},
		{StatusWaiting, StatusLoading, true},
		{StatusLoading, StatusRunning, true},
		{StatusLoading, StatusIdle, true},
		{StatusLoading, StatusErrored, true},
		{StatusRunning, StatusIdle, true},
		{StatusRunning, StatusErrored, true},
		{StatusIdle, StatusRunning, true},
		{StatusErrored, StatusWaiting, true},
		{StatusRunning, StatusDisabled, true},
		{StatusIdle, StatusDisabled, true},
		{StatusErrored, StatusDisabled, true},
		{StatusDisabled, StatusRunning, false},
		{StatusWaiting, StatusRunning, false},
		{StatusRunning, StatusLoading, false},
		{StatusErrored, StatusRunning, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestSetStatus_RejectsInvalidTransition(t *testing.T) {
	r := New("gpu-0", "local", true)

	if err := r.SetStatus(StatusRunning); err == nil {
		t.Fatal("expected error transitioning Disabled -> Running directly")
	}
	if r.Status() != StatusDisabled {
		t.Errorf("status should be unchanged after rejected transition, got %s", r.Status())
	}
}

func TestSetStatus_WalksLifecycle(t *testing.T) {
	r := New("gpu-0", "local", true)

	steps := []Status{StatusWaiting, StatusLoading, StatusRunning, StatusIdle, StatusRunning, StatusDisabled}
	for _, s := range steps {
		if err := r.SetStatus(s); err != nil {
			t.Fatalf("SetStatus(%s) failed: %v", s, err)
		}
	}
	if r.Status() != StatusDisabled {
		t.Errorf("expected final status Disabled, got %s", r.Status())
	}
}

func TestSetStatus_InvokesCallback(t *testing.T) {
	r := New("gpu-0", "local", true)

	var transitions [][2]Status
	r.OnStatusChange(func(old, new Status) {
		transitions = append(transitions, [2]Status{old, new})
	})

	_ = r.SetStatus(StatusWaiting)
	_ = r.SetStatus(StatusLoading)

	if len(transitions) != 2 {
		t.Fatalf("expected 2 recorded transitions, got %d", len(transitions))
	}
	if transitions[0] != [2]Status{StatusDisabled, StatusWaiting} {
		t.Errorf("unexpected first transition: %v", transitions[0])
	}
	if transitions[1] != [2]Status{StatusWaiting, StatusLoading} {
		t.Errorf("unexpected second transition: %v", transitions[1])
	}
}

func TestSetStatus_RejectedTransitionSkipsCallback(t *testing.T) {
	r := New("gpu-0", "local", true)

	called := false
	r.OnStatusChange(func(old, new Status) { called = true })

	if err := r.SetStatus(StatusRunning); err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("callback must not fire on a rejected transition")
	}
}

func TestTryAcquire_RequiresRunningAndFree(t *testing.T) {
	r := New("gpu-0", "local", true)

	if r.TryAcquire() {
		t.Fatal("should not acquire a Disabled record")
	}

	_ = r.SetStatus(StatusWaiting)
	_ = r.SetStatus(StatusLoading)
	_ = r.SetStatus(StatusRunning)

	if !r.TryAcquire() {
		t.Fatal("expected to acquire a Running, non-busy record")
	}
	if !r.Busy() {
		t.Error("expected Busy() true after TryAcquire")
	}
	if r.TryAcquire() {
		t.Error("a second TryAcquire must fail while already busy")
	}

	r.Release()
	if r.Busy() {
		t.Error("expected Busy() false after Release")
	}
	if !r.TryAcquire() {
		t.Error("expected to re-acquire after Release")
	}
}

func TestFeatures_RoundTrip(t *testing.T) {
	r := New("gpu-0", "local", true)
	r.SetFeatures(map[string]struct{}{"img2img": {}, "inpaint": {}})

	if !r.HasFeature("img2img") {
		t.Error("expected HasFeature(img2img) true")
	}
	if r.HasFeature("upscale") {
		t.Error("expected HasFeature(upscale) false")
	}

	snap := r.Snapshot()
	if !snap.HasFeature("inpaint") {
		t.Error("expected snapshot to carry feature set")
	}

	// Mutating the returned map must not affect the record's internal state.
	got := r.Features()
	got["upscale"] = struct{}{}
	if r.HasFeature("upscale") {
		t.Error("Features() must return a defensive copy")
	}
}

func TestSnapshot_CapturesOutstandingAndBusy(t *testing.T) {
	r := New("gpu-0", "local", false)
	_ = r.SetStatus(StatusWaiting)
	_ = r.SetStatus(StatusLoading)
	_ = r.SetStatus(StatusRunning)
	r.SetCurrentModel("sdxl")
	r.AddOutstanding(2)
	r.TryAcquire()

	snap := r.Snapshot()
	if snap.Status != StatusRunning || snap.CurrentModel != "sdxl" || snap.Outstanding != 2 || !snap.Busy || snap.IsReal {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestAddOutstanding_TracksDelta(t *testing.T) {
	r := New("gpu-0", "local", true)
	r.AddOutstanding(3)
	r.AddOutstanding(-1)
	if got := r.Outstanding(); got != 2 {
		t.Errorf("expected Outstanding() = 2, got %d", got)
	}
}
