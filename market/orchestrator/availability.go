package orchestrator

import (
	"context"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
)

// availabilityTTL bounds how long a per-adapter liveness answer is served
// from cache before the adapter is probed again.
const availabilityTTL = 30 * time.Second

type availabilityEntry struct {
	available bool
	checkedAt time.Time
}

// AdapterAvailable reports whether the named adapter currently answers its
// liveness check. Answers are memoized for a short window so tool filtering
// does not hammer upstream health endpoints once per agent run. An unknown
// name is reported unavailable.
func (o *Orchestrator) AdapterAvailable(ctx context.Context, name string) bool {
	o.mu.RLock()
	entry, ok := o.availCache[name]
	o.mu.RUnlock()
	if ok && time.Since(entry.checkedAt) < availabilityTTL {
		return entry.available
	}

	var adapter providers.Adapter
	for _, a := range o.adapters {
		if a.Name() == name {
			adapter = a
			break
		}
	}
	if adapter == nil {
		return false
	}

	available := adapter.Available(ctx)
	o.mu.Lock()
	if o.availCache == nil {
		o.availCache = make(map[string]availabilityEntry)
	}
	o.availCache[name] = availabilityEntry{available: available, checkedAt: time.Now()}
	o.mu.Unlock()
	return available
}
