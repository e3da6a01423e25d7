// Package tools builds the per-task tool surface the agent graph calls: a
// filtered view of the registry (allow-list intersected with
// provider-availability), a blocking-isolation wrapper, and a
// per-(task,tool) circuit breaker around MCP-bridged calls.
package tools

import (
	"github.com/BaSui01/tradeflow/agent/records"
	"github.com/BaSui01/tradeflow/llm"
)

// ProviderAvailability reports whether a tool backed by an upstream data
// provider is currently usable, e.g. because its adapter or MCP server is
// reachable. Tools with no provider dependency are always available.
type ProviderAvailability interface {
	ToolAvailable(name string) bool
}

// FilteredTools applies the 3-step tool filter: start from the full
// registry schema list, intersect with the record's tool allow-list (empty
// allow-list means the full toolset), then drop any tool the current
// provider set can't serve.
func FilteredTools(registryTools []llm.ToolSchema, record records.Record, availability ProviderAvailability) []llm.ToolSchema {
	allowed := make(map[string]struct{}, len(record.Tools))
	for _, name := range record.Tools {
		allowed[name] = struct{}{}
	}

	out := make([]llm.ToolSchema, 0, len(registryTools))
	for _, schema := range registryTools {
		if len(allowed) > 0 {
			if _, ok := allowed[schema.Name]; !ok {
				continue
			}
		}
		if availability != nil && !availability.ToolAvailable(schema.Name) {
			continue
		}
		out = append(out, schema)
	}
	return out
}
