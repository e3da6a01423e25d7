// Package mcpbridge is the client-side MCP tool bridge: it dials the
// external tool servers declared in config, tracks their lifecycle and
// health, and exposes a unified tool catalog to the agent graph's tool
// dispatch layer. agent/protocol/mcp implements the server side of the
// protocol; this package is the client-side connection manager.
package mcpbridge

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// TransportType selects how a server is reached.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http" // streamable HTTP / SSE
)

// ServerConfig describes one external tool server.
type ServerConfig struct {
	Name      string        `json:"name" yaml:"name"`
	Transport TransportType `json:"transport" yaml:"transport"`
	Enabled   bool          `json:"enabled" yaml:"enabled"`

	// stdio transport
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Env     []string `json:"env,omitempty" yaml:"env,omitempty"`

	// http/SSE transport
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Config is the full MCP servers configuration file.
type Config struct {
	Servers []ServerConfig `json:"servers" yaml:"servers"`
}

// manifest is the on-disk MCP servers file shape:
// {"mcpServers": { name -> {command,args,env,url,transport,enabled} }}.
type manifest struct {
	MCPServers map[string]manifestServer `json:"mcpServers"`
}

type manifestServer struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Transport TransportType     `json:"transport,omitempty"`
	Enabled   *bool             `json:"enabled,omitempty"`
}

// LoadConfig reads the MCP servers manifest from path. Servers are returned
// in name order so reloads are deterministic. A server without an explicit
// transport defaults to stdio when a command is set, http when a URL is
// set; enabled defaults to true.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("mcpbridge: read config: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("mcpbridge: parse config: %w", err)
	}

	names := make([]string, 0, len(m.MCPServers))
	for name := range m.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	cfg := Config{Servers: make([]ServerConfig, 0, len(names))}
	for _, name := range names {
		ms := m.MCPServers[name]
		sc := ServerConfig{
			Name:      name,
			Transport: ms.Transport,
			Enabled:   ms.Enabled == nil || *ms.Enabled,
			Command:   ms.Command,
			Args:      ms.Args,
			URL:       ms.URL,
		}
		if sc.Transport == "" {
			if sc.Command != "" {
				sc.Transport = TransportStdio
			} else {
				sc.Transport = TransportHTTP
			}
		}
		envKeys := make([]string, 0, len(ms.Env))
		for k := range ms.Env {
			envKeys = append(envKeys, k)
		}
		sort.Strings(envKeys)
		for _, k := range envKeys {
			sc.Env = append(sc.Env, k+"="+ms.Env[k])
		}
		cfg.Servers = append(cfg.Servers, sc)
	}
	return cfg, nil
}

// RestartPolicy bounds manual restarts: at most N restarts
// within a rolling window, otherwise refuse.
type RestartPolicy struct {
	MaxRestarts int
	Window      time.Duration
}

// DefaultRestartPolicy is N=3 restarts per 5-minute rolling window.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{MaxRestarts: 3, Window: 5 * time.Minute}
}

// HealthStatus is one server's current reachability.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthUnreachable HealthStatus = "unreachable"
	HealthStopped     HealthStatus = "stopped"
	HealthUnknown     HealthStatus = "unknown"
)
