package common

import "testing"

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuardPaused(t *testing.T) {
	pauses := pauseMap{"sale": true}
	if err := Guard(pauses, "sale"); err != ErrModulePaused {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, "sale"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}

func TestCallGuardRejectsNestedEntry(t *testing.T) {
	guard := &CallGuard{}
	if err := guard.Enter(); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if err := guard.Enter(); err != ErrReentrantCall {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	guard.Exit()
	if err := guard.Enter(); err != nil {
		t.Fatalf("enter after exit: %v", err)
	}
	guard.Exit()
}
