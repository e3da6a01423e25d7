package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/tradeflow/llm"
	llmtools "github.com/BaSui01/tradeflow/llm/tools"
)

// TaskToolExecutor adapts Execute's per-call, never-throws contract to the
// llmtools.ToolExecutor interface the ReAct loop expects, so one task's
// breaker set and MCP-bridge detection ride along on every tool call the
// loop makes without the loop itself knowing about breakers.
type TaskToolExecutor struct {
	Registry llmtools.ToolExecutor
	Breakers *TaskBreakers
	MCP      MCPTool
}

// Execute runs every call through ExecuteOne, preserving call order.
func (t *TaskToolExecutor) Execute(ctx context.Context, calls []llm.ToolCall) []llmtools.ToolResult {
	out := make([]llmtools.ToolResult, len(calls))
	for i, call := range calls {
		out[i] = t.ExecuteOne(ctx, call)
	}
	return out
}

// ExecuteOne never sets ToolResult.Error: a failure is folded into Result as
// the "❌ tool X failed: …" string, matching Execute's contract that tool
// failures are shown to the LLM, never raised as a loop-ending Go error.
func (t *TaskToolExecutor) ExecuteOne(ctx context.Context, call llm.ToolCall) llmtools.ToolResult {
	start := time.Now()
	content := Execute(ctx, t.Registry, t.Breakers, t.MCP, call)
	raw, _ := json.Marshal(content)
	return llmtools.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Result:     raw,
		Duration:   time.Since(start),
	}
}
