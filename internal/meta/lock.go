package meta

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// lockState is shared by every guard of one repository. It starts in the
// concurrent state and can move to the fast path exactly once; there is no
// way back.
type lockState struct {
	fast atomic.Bool
}

func (s *lockState) fastPath() bool {
	return s.fast.Load()
}

func (s *lockState) enterFastPath() {
	s.fast.Store(true)
}

// guard is a mutex that stops locking once its lockState enters the fast
// path. lock returns the matching unlock so a guard taken before the
// transition is still released.
type guard struct {
	mu    sync.Mutex
	state *lockState
}

func newGuard(state *lockState) *guard {
	return &guard{state: state}
}

func (g *guard) lock() (unlock func()) {
	if g.state.fastPath() {
		return func() {}
	}
	g.mu.Lock()
	return g.mu.Unlock
}

// preloaded reports whether the repository is on the fast path, warning
// about op when it is. Changes made there race with unlocked readers.
func (r *Repository) preloaded(op string) bool {
	if !r.state.fastPath() {
		return false
	}
	r.logger.Warn("metadata repository changed after preload", zap.String("operation", op))
	return true
}
