package engine

import (
	"math/big"
	"sync"
)

// Named operations the tracker asks cost estimates for.
const (
	OpBailOut    = "bailout"
	OpSelfSettle = "settle"
)

// GasFeeEngine exposes current cost estimates per named operation and a
// readiness flag. Estimation logic lives outside the tracker.
type GasFeeEngine interface {
	Ready() bool
	Estimate(op string) (*big.Int, bool)
}

// StaticGasFee is a fixed-cost engine used by the CLI and tests.
type StaticGasFee struct {
	mu    sync.Mutex
	costs map[string]*big.Int
}

// NewStaticGasFee returns an engine serving the given per-operation costs.
func NewStaticGasFee(costs map[string]*big.Int) *StaticGasFee {
	copied := make(map[string]*big.Int, len(costs))
	for op, cost := range costs {
		copied[op] = new(big.Int).Set(cost)
	}
	return &StaticGasFee{costs: copied}
}

// Ready reports whether any estimates are available.
func (g *StaticGasFee) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.costs) > 0
}

// Estimate returns the cost for a named operation.
func (g *StaticGasFee) Estimate(op string) (*big.Int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cost, ok := g.costs[op]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(cost), true
}
