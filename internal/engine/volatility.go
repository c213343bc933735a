package engine

import (
	"math/big"
	"sync"
)

// VolatilityEngine exposes the last computed slippage bound and a change
// notification. The estimation itself happens outside the tracker.
type VolatilityEngine interface {
	SlippageBoundBps() *big.Int
	OnChange(fn func())
}

// StaticVolatility is a fixed-bound engine used by the CLI and tests.
type StaticVolatility struct {
	mu    sync.Mutex
	bound *big.Int
	subs  []func()
}

// NewStaticVolatility returns an engine with a fixed bound in basis points.
func NewStaticVolatility(boundBps *big.Int) *StaticVolatility {
	if boundBps == nil {
		boundBps = new(big.Int)
	}
	return &StaticVolatility{bound: new(big.Int).Set(boundBps)}
}

// SlippageBoundBps returns the current bound.
func (v *StaticVolatility) SlippageBoundBps() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.bound)
}

// OnChange registers a change listener.
func (v *StaticVolatility) OnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs = append(v.subs, fn)
}

// SetBound updates the bound and notifies listeners.
func (v *StaticVolatility) SetBound(boundBps *big.Int) {
	v.mu.Lock()
	v.bound = new(big.Int).Set(boundBps)
	subs := append([]func(){}, v.subs...)
	v.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}
