package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/tradeflow/llm"
	llmtools "github.com/BaSui01/tradeflow/llm/tools"
)

// MCPTool flags whether a tool is bridged through an external MCP server
// (and therefore goes through the per-(task,tool) breaker) versus a local,
// in-process tool (which bypasses the breaker entirely).
type MCPTool interface {
	IsMCPBridged(name string) bool
}

// Execute runs one tool call against registry and never returns a Go error
// up to the LLM-facing caller: failures become the "❌ tool X failed: …"
// string result, so the conversation loop can always append
// a tool message.
func Execute(ctx context.Context, registry llmtools.ToolExecutor, breakers *TaskBreakers, mcp MCPTool, call llm.ToolCall) string {
	isBridged := mcp != nil && mcp.IsMCPBridged(call.Name)

	run := func() llmtools.ToolResult {
		return registry.ExecuteOne(ctx, call)
	}

	var result llmtools.ToolResult
	if isBridged && breakers != nil {
		cb := breakers.For(call.Name)
		res, err := cb.CallWithResult(ctx, func() (any, error) {
			r := run()
			if r.Error != "" {
				return r, fmt.Errorf("%s", r.Error)
			}
			return r, nil
		})
		if err != nil {
			return fmt.Sprintf("❌ tool %s failed: %s", call.Name, err.Error())
		}
		result = res.(llmtools.ToolResult)
	} else {
		result = run()
	}

	if result.Error != "" {
		return fmt.Sprintf("❌ tool %s failed: %s", call.Name, result.Error)
	}
	return formatResult(result.Result)
}

func formatResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var pretty string
	if err := json.Unmarshal(raw, &pretty); err == nil {
		return pretty
	}
	return string(raw)
}
