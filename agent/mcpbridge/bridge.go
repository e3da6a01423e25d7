package mcpbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	proto "github.com/BaSui01/tradeflow/agent/protocol/mcp"
	"go.uber.org/zap"
)

// connection is one live (or last-known) server connection.
type connection struct {
	cfg    ServerConfig
	client *rpcClient
	proc   *stdioProcess // nil for http/SSE servers

	mu       sync.Mutex
	health   HealthStatus
	tools    []proto.ToolDefinition
	restarts []time.Time // restart timestamps within the rolling window
}

// Bridge is the application-scoped MCP connection manager. Connections are
// dialed once at startup (InitializeConnections) and persist across tasks;
// individual servers can be toggled or restarted, and reload tears
// everything down and re-dials from fresh config.
type Bridge struct {
	mu      sync.Mutex // serializes Reload/EnableServer/DisableServer against torn state
	conns   map[string]*connection
	cfg     Config
	restart RestartPolicy
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge builds an unconnected Bridge over cfg. Call InitializeConnections
// to dial.
func NewBridge(cfg Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		conns:   make(map[string]*connection),
		cfg:     cfg,
		restart: DefaultRestartPolicy(),
		logger:  logger.With(zap.String("component", "mcp_bridge")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// InitializeConnections dials every enabled server in cfg and caches its
// tool list, decorated with {server_name} metadata.
func (b *Bridge) InitializeConnections(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, sc := range b.cfg.Servers {
		if !sc.Enabled {
			b.conns[sc.Name] = &connection{cfg: sc, health: HealthStopped}
			continue
		}
		conn, err := b.dialLocked(ctx, sc)
		if err != nil {
			b.logger.Error("failed to dial mcp server", zap.String("server", sc.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			conn = &connection{cfg: sc, health: HealthUnreachable}
		}
		b.conns[sc.Name] = conn
	}
	return firstErr
}

func (b *Bridge) dialLocked(ctx context.Context, sc ServerConfig) (*connection, error) {
	var (
		transport proto.Transport
		proc      *stdioProcess
		err       error
	)

	switch sc.Transport {
	case TransportStdio:
		proc, transport, err = launchStdio(sc, b.logger)
	case TransportHTTP:
		sse := proto.NewSSETransport(sc.URL, b.logger)
		if connErr := sse.Connect(ctx); connErr != nil {
			err = connErr
		} else {
			transport = sse
		}
	default:
		return nil, fmt.Errorf("mcpbridge: unknown transport %q for server %s", sc.Transport, sc.Name)
	}
	if err != nil {
		return nil, err
	}

	client := newRPCClient(transport, b.logger)
	go client.run(b.ctx)

	tools, err := client.listTools(ctx)
	if err != nil {
		_ = client.close()
		if proc != nil {
			_ = proc.terminate()
		}
		return nil, fmt.Errorf("mcpbridge: list tools for %s: %w", sc.Name, err)
	}
	decorateWithServer(tools, sc.Name)

	return &connection{cfg: sc, client: client, proc: proc, health: HealthHealthy, tools: tools}, nil
}

func decorateWithServer(tools []proto.ToolDefinition, server string) {
	for i := range tools {
		if tools[i].Metadata == nil {
			tools[i].Metadata = make(map[string]any)
		}
		tools[i].Metadata["server_name"] = server
	}
}

// Reload tears down every connection, clears the tool cache, reloads cfg,
// and re-dials. Serializes through the same lock as EnableServer/
// DisableServer to avoid torn state.
func (b *Bridge) Reload(ctx context.Context, cfg Config) error {
	b.mu.Lock()
	for _, conn := range b.conns {
		closeConnection(conn)
	}
	b.conns = make(map[string]*connection)
	b.cfg = cfg
	b.mu.Unlock()

	return b.InitializeConnections(ctx)
}

func closeConnection(conn *connection) {
	if conn.client != nil {
		_ = conn.client.close()
	}
	if conn.proc != nil {
		_ = conn.proc.terminate()
	}
}

// EnableServer connects a previously-disabled server on the fly.
func (b *Bridge) EnableServer(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.conns[name]
	if !ok {
		return fmt.Errorf("mcpbridge: unknown server %q", name)
	}
	sc := existing.cfg
	sc.Enabled = true

	conn, err := b.dialLocked(ctx, sc)
	if err != nil {
		return fmt.Errorf("mcpbridge: enable %s: %w", name, err)
	}
	b.conns[name] = conn
	return nil
}

// DisableServer disconnects a server on the fly, leaving its config in
// place so it can be re-enabled later.
func (b *Bridge) DisableServer(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.conns[name]
	if !ok {
		return fmt.Errorf("mcpbridge: unknown server %q", name)
	}
	closeConnection(conn)
	sc := conn.cfg
	sc.Enabled = false
	b.conns[name] = &connection{cfg: sc, health: HealthStopped}
	return nil
}

// CallTool dispatches a tool invocation to the named server.
func (b *Bridge) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	b.mu.Lock()
	conn, ok := b.conns[server]
	b.mu.Unlock()
	if !ok || conn.client == nil {
		return "", fmt.Errorf("mcpbridge: server %q not connected", server)
	}
	raw, err := conn.client.callTool(ctx, tool, args)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Shutdown closes every client and terminates every tracked child process
// group. Intended to be called from the application's shutdown path (and,
// belt-and-suspenders, from a signal/at-exit handler at the cmd/tradeflow
// layer).
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		closeConnection(conn)
	}
	b.conns = make(map[string]*connection)
	b.cancel()
}
