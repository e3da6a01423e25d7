package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BaSui01/tradeflow/llm"
	llmtools "github.com/BaSui01/tradeflow/llm/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskToolExecutor_ExecuteOnePreservesCallID(t *testing.T) {
	raw, _ := json.Marshal("ok")
	registry := fakeToolExecutor{result: llmtools.ToolResult{Result: raw}}
	exec := &TaskToolExecutor{Registry: registry, MCP: noMCP{}}

	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "call-1", Name: "get_quote"})
	assert.Equal(t, "call-1", result.ToolCallID)
	assert.Equal(t, "get_quote", result.Name)
	assert.Empty(t, result.Error, "tool failures fold into Result, never Error")
}

func TestTaskToolExecutor_ToolFailureNeverSetsErrorField(t *testing.T) {
	registry := fakeToolExecutor{result: llmtools.ToolResult{Error: "upstream down"}}
	exec := &TaskToolExecutor{Registry: registry, MCP: noMCP{}}

	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "call-2", Name: "get_quote"})
	assert.Empty(t, result.Error)

	var content string
	require.NoError(t, json.Unmarshal(result.Result, &content))
	assert.Contains(t, content, "❌ tool get_quote failed: upstream down")
}

func TestTaskToolExecutor_ExecutePreservesOrder(t *testing.T) {
	raw, _ := json.Marshal("ok")
	registry := fakeToolExecutor{result: llmtools.ToolResult{Result: raw}}
	exec := &TaskToolExecutor{Registry: registry, MCP: noMCP{}}

	calls := []llm.ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}, {ID: "c", Name: "z"}}
	results := exec.Execute(context.Background(), calls)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.Equal(t, "b", results[1].ToolCallID)
	assert.Equal(t, "c", results[2].ToolCallID)
}

func TestTaskToolExecutor_BridgedCallGoesThroughBreaker(t *testing.T) {
	registry := fakeToolExecutor{result: llmtools.ToolResult{Error: "mcp down"}}
	breakers := NewTaskBreakers(nil, nil)
	exec := &TaskToolExecutor{Registry: registry, Breakers: breakers, MCP: bridgedMCP{}}

	result := exec.ExecuteOne(context.Background(), llm.ToolCall{ID: "call-3", Name: "akshare:get_quote"})
	var content string
	require.NoError(t, json.Unmarshal(result.Result, &content))
	assert.Contains(t, content, "❌ tool akshare:get_quote failed:")
}
