// Package observability lets callers watch a run without the simulation
// packages depending on any metrics backend.
//
// Libraries report events through the registered hooks; main registers an
// implementation at startup. The defaults do nothing.
//
//	observability.SetSimulationHooks(observability.NewPrometheusHooks(prometheus.DefaultRegisterer))
//
// Libraries emit events:
//
//	observability.Simulation().OnStep(ctx, scenario, t, converged, elapsed)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Simulation Hooks
// =============================================================================

// SimulationHooks receives events from a scenario run.
type SimulationHooks interface {
	OnTopologyBuilt(ctx context.Context, scenario string, nodes, edges int, duration time.Duration, err error)
	OnIndexBuilt(ctx context.Context, scenario string, customers int, cached bool, duration time.Duration, err error)

	// OnStep fires after every solved timestep, converged or not.
	OnStep(ctx context.Context, scenario string, t time.Time, converged bool, duration time.Duration)

	OnRunComplete(ctx context.Context, scenario string, steps, failed int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache lookups.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Store Hooks
// =============================================================================

// StoreHooks receives events from report sinks.
type StoreHooks interface {
	// OnWrite records a write of n records to sink ("mongo", "influx").
	OnWrite(ctx context.Context, sink string, n int, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopSimulationHooks ignores every event.
type NoopSimulationHooks struct{}

func (NoopSimulationHooks) OnTopologyBuilt(context.Context, string, int, int, time.Duration, error) {
}
func (NoopSimulationHooks) OnIndexBuilt(context.Context, string, int, bool, time.Duration, error) {}
func (NoopSimulationHooks) OnStep(context.Context, string, time.Time, bool, time.Duration)        {}
func (NoopSimulationHooks) OnRunComplete(context.Context, string, int, int, time.Duration, error) {}

// NoopCacheHooks ignores every event.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopStoreHooks ignores every event.
type NoopStoreHooks struct{}

func (NoopStoreHooks) OnWrite(context.Context, string, int, time.Duration, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	simulationHooks SimulationHooks = NoopSimulationHooks{}
	cacheHooks      CacheHooks      = NoopCacheHooks{}
	storeHooks      StoreHooks      = NoopStoreHooks{}
	hooksMu         sync.RWMutex
)

// SetSimulationHooks registers h. Nil is ignored.
func SetSimulationHooks(h SimulationHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		simulationHooks = h
	}
}

// SetCacheHooks registers h. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetStoreHooks registers h. Nil is ignored.
func SetStoreHooks(h StoreHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storeHooks = h
	}
}

// Simulation returns the registered simulation hooks.
func Simulation() SimulationHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return simulationHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Store returns the registered store hooks.
func Store() StoreHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storeHooks
}

// Reset restores the no-op hooks.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	simulationHooks = NoopSimulationHooks{}
	cacheHooks = NoopCacheHooks{}
	storeHooks = NoopStoreHooks{}
}
