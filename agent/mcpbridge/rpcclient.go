package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	proto "github.com/BaSui01/tradeflow/agent/protocol/mcp"
	"go.uber.org/zap"
)

// rpcClient is a generic JSON-RPC correlation layer over any
// proto.Transport (stdio or SSE) — the request/response pending-map idiom
// is ported directly from proto.DefaultMCPClient.sendRequest, generalized
// to work with whichever Transport the server uses instead of being
// hardwired to stdio's Content-Length framing.
type rpcClient struct {
	transport proto.Transport
	logger    *zap.Logger

	nextID    int64
	pending   map[int64]chan *proto.MCPMessage
	pendingMu sync.Mutex

	done chan struct{}
}

func newRPCClient(transport proto.Transport, logger *zap.Logger) *rpcClient {
	return &rpcClient{
		transport: transport,
		logger:    logger,
		pending:   make(map[int64]chan *proto.MCPMessage),
		done:      make(chan struct{}),
	}
}

// run is the background read loop; it must be started once per client.
func (c *rpcClient) run(ctx context.Context) {
	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			c.logger.Debug("rpc client receive loop ending", zap.Error(err))
			c.failAllPending(err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *rpcClient) dispatch(msg *proto.MCPMessage) {
	if msg.ID == nil {
		return // notification; nothing to correlate
	}
	idFloat, ok := msg.ID.(float64)
	if !ok {
		return
	}
	c.pendingMu.Lock()
	ch, exists := c.pending[int64(idFloat)]
	c.pendingMu.Unlock()
	if exists {
		ch <- msg
	}
}

func (c *rpcClient) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- proto.NewMCPError(float64(id), -1, err.Error(), nil)
	}
}

// call sends method/params and waits for the correlated response.
func (c *rpcClient) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)

	respCh := make(chan *proto.MCPMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.transport.Send(ctx, proto.NewMCPRequest(float64(id), method, params)); err != nil {
		return nil, fmt.Errorf("mcpbridge: send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("mcpbridge: %s error %d: %s", method, resp.Error.Code, resp.Error.Message)
		}
		return json.Marshal(resp.Result)
	}
}

func (c *rpcClient) listTools(ctx context.Context) ([]proto.ToolDefinition, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var tools []proto.ToolDefinition
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("mcpbridge: parse tools/list: %w", err)
	}
	return tools, nil
}

func (c *rpcClient) callTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
}

func (c *rpcClient) ping(ctx context.Context) error {
	_, err := c.call(ctx, "server/info", nil)
	return err
}

func (c *rpcClient) close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return c.transport.Close()
}
