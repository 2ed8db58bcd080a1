package syncer

import "sync"

// PauseGuard gates remote-change delivery during uploads. It is a depth
// counter rather than a flag so that overlapping pauses cannot resume each
// other early.
//
// Only the engine acquires the guard; other packages can observe Paused.
type PauseGuard struct {
	mu    sync.Mutex
	depth int
}

// Paused reports whether at least one pause is active.
func (g *PauseGuard) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth > 0
}

// WithPause runs fn with the guard held. The guard is released however fn
// exits, including by panic.
func (g *PauseGuard) WithPause(fn func() error) error {
	g.mu.Lock()
	g.depth++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.depth--
		g.mu.Unlock()
	}()

	return fn()
}

// unlessPaused runs fn only when no pause is active, holding the guard's
// lock so a pause cannot begin until fn returns. It reports whether fn ran.
func (g *PauseGuard) unlessPaused(fn func() error) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.depth > 0 {
		return false, nil
	}
	return true, fn()
}
