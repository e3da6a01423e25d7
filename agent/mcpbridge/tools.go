package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	llmtools "github.com/BaSui01/tradeflow/llm/tools"
	"github.com/BaSui01/tradeflow/types"
)

// ToolInfo is the unified tool-catalog entry exposed via
// ListAvailableTools: local and MCP-bridged tools presented uniformly.
type ToolInfo struct {
	ID          string `json:"id"` // "{server}:{name}", or bare name for local tools
	Name        string `json:"name"`
	Description string `json:"description"`
	Server      string `json:"server,omitempty"` // empty for local tools
	Status      string `json:"status"`
}

// LocalTool is the minimal shape a local (non-bridged) tool registry needs
// to expose for the union in ListAvailableTools.
type LocalTool struct {
	Name        string
	Description string
}

// ListAvailableTools unions local tools with every connected server's
// bridged tools, deduped by {server}:{name} (local tools use a bare name,
// so a local tool and a bridged tool of the same name never collide).
func (b *Bridge) ListAvailableTools(local []LocalTool) []ToolInfo {
	seen := make(map[string]struct{})
	out := make([]ToolInfo, 0, len(local))

	for _, lt := range local {
		if _, dup := seen[lt.Name]; dup {
			continue
		}
		seen[lt.Name] = struct{}{}
		out = append(out, ToolInfo{ID: lt.Name, Name: lt.Name, Description: lt.Description, Status: "local"})
	}

	b.mu.Lock()
	conns := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		conn.mu.Lock()
		server := conn.cfg.Name
		status := string(conn.health)
		tools := conn.tools
		conn.mu.Unlock()

		for _, t := range tools {
			id := server + ":" + t.Name
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, ToolInfo{ID: id, Name: t.Name, Description: t.Description, Server: server, Status: status})
		}
	}

	return out
}

// IsMCPBridged reports whether name is a "{server}:{tool}" id pointing at a
// currently known connection, the predicate agent/tools.Execute uses to
// decide whether a call goes through that task's circuit breaker.
func (b *Bridge) IsMCPBridged(name string) bool {
	server, _, ok := strings.Cut(name, ":")
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, known := b.conns[server]
	return known
}

// RegisterInto registers every connected server's bridged tools into
// registry under their "{server}:{name}" id, each backed by a ToolFunc that
// forwards the call to CallTool. Call once at startup after
// InitializeConnections; a server added later via EnableServer needs its
// own follow-up RegisterInto call since the registry has no delete-by-prefix
// operation.
func (b *Bridge) RegisterInto(registry llmtools.ToolRegistry) error {
	b.mu.Lock()
	conns := make(map[string]*connection, len(b.conns))
	for name, c := range b.conns {
		conns[name] = c
	}
	b.mu.Unlock()

	for server, conn := range conns {
		conn.mu.Lock()
		tools := conn.tools
		conn.mu.Unlock()

		for _, t := range tools {
			id := server + ":" + t.Name
			params, err := json.Marshal(t.InputSchema)
			if err != nil {
				return fmt.Errorf("mcpbridge: marshal schema for %s: %w", id, err)
			}
			schema := types.ToolSchema{Name: id, Description: t.Description, Parameters: params}

			serverName, toolName := server, t.Name
			fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var parsed map[string]any
				if len(args) > 0 {
					if err := json.Unmarshal(args, &parsed); err != nil {
						return nil, fmt.Errorf("mcpbridge: decode arguments: %w", err)
					}
				}
				raw, err := b.CallTool(ctx, serverName, toolName, parsed)
				if err != nil {
					return nil, err
				}
				return json.RawMessage(raw), nil
			}
			if err := registry.Register(id, fn, llmtools.ToolMetadata{Schema: schema}); err != nil {
				return fmt.Errorf("mcpbridge: register %s: %w", id, err)
			}
		}
	}
	return nil
}
