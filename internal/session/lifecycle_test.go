package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLifecycle(now time.Time, sessions ...*Session) (*Lifecycle, *memStore, *recordingHooks) {
	store := newMemStore(fixedNow(now), sessions...)
	hooks := &recordingHooks{}
	l := NewLifecycle(store, DefaultChain(store, nil), hooks, nil)
	l.SetClock(fixedNow(now))
	return l, store, hooks
}

func TestLifecycle_TickOpensAndCloses(t *testing.T) {
	morning := autoSession("morning", false, true)
	_ = morning.Open(t0)
	noon := autoSession("noon", true, false)
	noon.Start = t0.Add(90 * time.Minute)
	noon.End = t0.Add(3 * time.Hour)

	// morning ends exactly when noon starts
	l, store, hooks := newTestLifecycle(t0.Add(90*time.Minute), morning, noon)

	report, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(report.Closed) != 1 || report.Closed[0] != "morning" {
		t.Errorf("closed = %v, want [morning]", report.Closed)
	}
	if len(report.Opened) != 1 || report.Opened[0] != "noon" {
		t.Errorf("opened = %v, want [noon]", report.Opened)
	}
	if store.status("morning") != StatusClosed || store.status("noon") != StatusOpen {
		t.Errorf("stored statuses = %s/%s", store.status("morning"), store.status("noon"))
	}
	if len(hooks.opened) != 1 || len(hooks.closed) != 1 {
		t.Errorf("hooks opened=%v closed=%v", hooks.opened, hooks.closed)
	}
}

func TestLifecycle_TickIgnoresSessionsWithoutFlags(t *testing.T) {
	manual := autoSession("manual", false, false)
	l, store, _ := newTestLifecycle(t0.Add(time.Minute), manual)

	report, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(report.Opened)+len(report.Closed) != 0 {
		t.Errorf("report = %+v, want no transitions", report)
	}
	if store.status("manual") != StatusPending {
		t.Errorf("status = %s, want pending", store.status("manual"))
	}
}

func TestLifecycle_LastTick(t *testing.T) {
	now := t0.Add(time.Minute)
	l, _, _ := newTestLifecycle(now, autoSession("a", true, false))
	if !l.LastTick().IsZero() {
		t.Fatalf("LastTick = %v before any tick, want zero", l.LastTick())
	}
	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !l.LastTick().Equal(now) {
		t.Errorf("LastTick = %v, want %v", l.LastTick(), now)
	}
}

func TestLifecycle_TickConflictingAutoStart(t *testing.T) {
	a := autoSession("a", true, false)
	b := autoSession("b", true, false)
	l, store, _ := newTestLifecycle(t0.Add(time.Minute), a, b)

	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if store.status("a") != StatusPending || store.status("b") != StatusPending {
		t.Error("conflicting auto-start sessions must both stay pending")
	}
}

func TestLifecycle_ManualTransitions(t *testing.T) {
	ctx := context.Background()
	l, store, hooks := newTestLifecycle(t0, newTestSession("s1"))

	if _, err := l.Open(ctx, "s1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.Open(ctx, "s1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Open: got %v, want ErrInvalidTransition", err)
	}
	if _, err := l.Close(ctx, "s1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s, err := l.Reset(ctx, "s1")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Status() != StatusPending || store.status("s1") != StatusPending {
		t.Errorf("status after reset = %s / stored %s", s.Status(), store.status("s1"))
	}
	if len(hooks.opened) != 1 || len(hooks.closed) != 1 {
		t.Errorf("hooks opened=%v closed=%v", hooks.opened, hooks.closed)
	}
	if _, err := l.Open(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestLifecycle_SaveFailureReported(t *testing.T) {
	a := autoSession("a", true, false)
	l, store, hooks := newTestLifecycle(t0.Add(time.Minute), a)
	store.saveErr = errors.New("disk full")

	report, err := l.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if report.Failed != 1 || len(report.Opened) != 0 {
		t.Errorf("report = %+v, want one failure", report)
	}
	if store.status("a") != StatusPending {
		t.Error("stored status must be unchanged after a failed save")
	}
	if len(hooks.opened) != 0 {
		t.Error("hooks must not run when the status was not persisted")
	}
}

func TestLifecycle_Evaluate(t *testing.T) {
	l, _, _ := newTestLifecycle(t0.Add(time.Minute), autoSession("a", true, true))

	report, err := l.Evaluate(context.Background(), "a")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !report.CanOpen.Allowed || report.CanClose.Allowed {
		t.Errorf("report = %+v, want open allowed and close denied", report)
	}
	if report.Description == "" {
		t.Error("expected a rule description")
	}
}

func TestLifecycle_StartStop(t *testing.T) {
	l, _, _ := newTestLifecycle(t0)
	ctx := context.Background()

	if err := l.Start(ctx, time.Hour, time.UTC); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Start(ctx, time.Hour, time.UTC); err == nil {
		t.Error("expected error when starting twice")
	}
	l.Stop()
	l.Stop()
}
