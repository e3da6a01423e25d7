package tools

import "context"

// AdapterHealth is the narrow slice of market/orchestrator.Orchestrator
// the availability filter needs: a cached per-adapter liveness answer.
type AdapterHealth interface {
	AdapterAvailable(ctx context.Context, name string) bool
}

// MarketAvailability implements ProviderAvailability over the orchestrator's
// adapter liveness. Requires maps a tool name to the one provider it cannot
// run without; tools absent from the map have no single-provider dependency
// (the orchestrator falls back across adapters for them) and are always
// available.
type MarketAvailability struct {
	Health   AdapterHealth
	Requires map[string]string
}

// ToolAvailable implements ProviderAvailability.
func (m *MarketAvailability) ToolAvailable(name string) bool {
	if m == nil || m.Health == nil {
		return true
	}
	provider, ok := m.Requires[name]
	if !ok {
		return true
	}
	return m.Health.AdapterAvailable(context.Background(), provider)
}
