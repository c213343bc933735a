package tracker

import "sync/atomic"

// generation is the stale-result guard. Callers capture the current
// token immediately before issuing an async request and compare it on
// completion; a mismatch means a newer session superseded the request
// and its result is silently discarded. This replaces explicit request
// cancellation.
type generation struct {
	counter atomic.Uint64
}

// next bumps the generation, invalidating every previously captured token.
func (g *generation) next() uint64 {
	return g.counter.Add(1)
}

// current returns the live token.
func (g *generation) current() uint64 {
	return g.counter.Load()
}

// valid reports whether a captured token is still the live one.
func (g *generation) valid(token uint64) bool {
	return g.counter.Load() == token
}
