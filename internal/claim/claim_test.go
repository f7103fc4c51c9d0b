package claim

import "testing"

func TestNew_StartsBalanced(t *testing.T) {
	c := New("req-1")
	if !c.Balanced() {
		t.Error("expected a fresh claim to be balanced")
	}
	if c.ShouldCancel() {
		t.Error("expected a fresh claim to not be cancelled")
	}
}

func TestExtendComplete_RoundTrip(t *testing.T) {
	c := New("req-1")

	if err := c.Extend(KindWaits, 1); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	if c.Balanced() {
		t.Error("expected unbalanced after Extend")
	}

	waits, live, gens := c.Counts()
	if waits != 1 || live != 0 || gens != 0 {
		t.Errorf("unexpected counts: waits=%d live=%d gens=%d", waits, live, gens)
	}

	c.Complete(KindWaits, 1)
	if !c.Balanced() {
		t.Error("expected balanced after Complete")
	}
}

func TestComplete_PanicsOnUnderflow(t *testing.T) {
	c := New("req-1")

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Complete to panic on underflow")
		}
	}()
	c.Complete(KindLive, 1)
}

func TestCancel_RejectsFurtherExtend(t *testing.T) {
	c := New("req-1")
	c.Cancel("shutdown")

	if !c.ShouldCancel() {
		t.Error("expected ShouldCancel true after Cancel")
	}

	err := c.Extend(KindWaits, 1)
	if err == nil {
		t.Fatal("expected Extend to fail after Cancel")
	}
	if _, ok := err.(*CancelledError); !ok {
		t.Errorf("expected *CancelledError, got %T", err)
	}
}

func TestCancel_AllowsCompleteForTeardown(t *testing.T) {
	c := New("req-1")
	_ = c.Extend(KindLive, 1)
	c.Cancel("user abort")

	// Complete must still work post-cancel so release paths can balance.
	c.Complete(KindLive, 1)
	if !c.Balanced() {
		t.Error("expected balanced after post-cancel Complete")
	}
}

func TestCancel_ClosesChannelOnce(t *testing.T) {
	c := New("req-1")

	select {
	case <-c.Cancelled():
		t.Fatal("channel should not be closed before Cancel")
	default:
	}

	c.Cancel("first")
	c.Cancel("second") // idempotent, must not panic on double-close

	select {
	case <-c.Cancelled():
	default:
		t.Fatal("expected channel closed after Cancel")
	}
}

func TestExtend_UnknownKindErrors(t *testing.T) {
	c := New("req-1")
	if err := c.Extend(Kind("bogus"), 1); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestMultipleKinds_IndependentCounters(t *testing.T) {
	c := New("req-1")
	_ = c.Extend(KindWaits, 1)
	_ = c.Extend(KindLive, 2)
	_ = c.Extend(KindGens, 1)

	c.Complete(KindWaits, 1)
	waits, live, gens := c.Counts()
	if waits != 0 || live != 2 || gens != 1 {
		t.Errorf("unexpected counts after partial complete: waits=%d live=%d gens=%d", waits, live, gens)
	}

	c.Complete(KindLive, 2)
	c.Complete(KindGens, 1)
	if !c.Balanced() {
		t.Error("expected balanced after completing all kinds")
	}
}
