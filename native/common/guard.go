package common

import (
	"errors"
	"sync/atomic"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

// PauseView reports whether a named module is administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects operations against paused modules.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// CallGuard latches while a state-mutating entry point is executing so that
// re-entry from transfer callbacks is rejected regardless of the ordering
// discipline inside the operation.
type CallGuard struct {
	busy atomic.Bool
}

// Enter acquires the latch. Callers must pair it with Exit.
func (g *CallGuard) Enter() error {
	if g == nil {
		return nil
	}
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit releases the latch.
func (g *CallGuard) Exit() {
	if g == nil {
		return
	}
	g.busy.Store(false)
}
