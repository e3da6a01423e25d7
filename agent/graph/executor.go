package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/tradeflow/agent/records"
	"github.com/BaSui01/tradeflow/llm"
	llmtools "github.com/BaSui01/tradeflow/llm/tools"
	"go.uber.org/zap"
)

// ToolSource supplies the per-node tool schema list and a wired executor
// (breakers, MCP-bridge detection) for one agent record, keeping the node
// executor itself ignorant of the per-task tool machinery in agent/tools.
type ToolSource interface {
	SchemasFor(record records.Record) []llm.ToolSchema
	ExecutorFor(record records.Record) llmtools.ToolExecutor
}

// LLMNodeExecutor is the concrete NodeExecutor: it resolves a node label to
// its agent record, builds a static context-prefix system prompt plus a
// per-round, dynamically built user message (so the system prompt alone
// stays cache-friendly), and runs either a plain completion or a ReAct
// tool-calling loop depending on whether the record has any tools.
type LLMNodeExecutor struct {
	provider      llm.Provider
	records       *records.Store
	tools         ToolSource
	maxIterations int
	logger        *zap.Logger
}

// NewLLMNodeExecutor wires a provider, the agent record store, and the
// per-task tool source into a NodeExecutor. maxIterations bounds the ReAct
// loop for tool-bearing nodes; 0 uses llmtools' own default of 10.
func NewLLMNodeExecutor(provider llm.Provider, store *records.Store, tools ToolSource, maxIterations int, logger *zap.Logger) *LLMNodeExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMNodeExecutor{
		provider:      provider,
		records:       store,
		tools:         tools,
		maxIterations: maxIterations,
		logger:        logger.With(zap.String("component", "agent_graph_executor")),
	}
}

// slugForNodeLabel inverts records.DeriveNodeLabel: "Market Analyst" ->
// "market-analyst", "Bull Researcher" -> "bull-researcher", matching the
// slug every fixed and dynamic role is declared under in the phase YAML
// files. Every node, fixed role or dynamic analyst, resolves its prompt
// through the same slug lookup.
func slugForNodeLabel(label string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), " ", "-"))
}

// Execute implements NodeExecutor.
func (e *LLMNodeExecutor) Execute(ctx context.Context, nodeLabel string, state *AnalysisState) (string, error) {
	slug := slugForNodeLabel(nodeLabel)
	record, ok := e.records.BySlug(slug)
	if !ok {
		return "", fmt.Errorf("agent graph executor: no agent record for node %q (slug %q)", nodeLabel, slug)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: buildSystemPrompt(record, state)},
		{Role: llm.RoleUser, Content: buildUserPrompt(nodeLabel, state)},
	}

	req := &llm.ChatRequest{Messages: messages}
	if e.tools != nil {
		req.Tools = e.tools.SchemasFor(record)
	}

	if len(req.Tools) == 0 || e.provider == nil || !e.provider.SupportsNativeFunctionCalling() {
		resp, err := e.provider.Completion(ctx, req)
		if err != nil {
			return "", err
		}
		return finalContent(resp), nil
	}

	executor := llmtools.NewReActExecutor(e.provider, e.tools.ExecutorFor(record), llmtools.ReActConfig{
		MaxIterations: e.maxIterations,
		StopOnError:   false,
	}, e.logger)

	resp, _, err := executor.Execute(ctx, req)
	if err != nil {
		return "", err
	}
	return finalContent(resp), nil
}

func finalContent(resp *llm.ChatResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// buildSystemPrompt prepends a small KV context block
// (ticker/company/date/currency) to the record's static role definition,
// keeping the role definition itself untouched between rounds so a caching
// provider can reuse its prefix.
func buildSystemPrompt(record records.Record, state *AnalysisState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "股票代码：%s\n", state.Symbol)
	fmt.Fprintf(&b, "公司名称：%s\n", state.CompanyName)
	fmt.Fprintf(&b, "交易日期：%s\n", state.TradeDate)
	fmt.Fprintf(&b, "价格单位：%s\n", state.Currency)
	b.WriteString("通用规则：请始终使用公司名称而不是股票代码来称呼这家公司\n\n")
	b.WriteString(record.RoleDefinition)
	return b.String()
}

// buildUserPrompt builds the per-round dynamic message. Fixed debate/risk
// roles get the history-aware rebuttal framing; everything else (the
// Stage-A analyst fan-out) gets the plain task framing.
func buildUserPrompt(nodeLabel string, state *AnalysisState) string {
	switch nodeLabel {
	case "Bull Researcher":
		return RebuttalPrompt(reportsSection(state), state.InvestmentDebate.BullHistory, state.InvestmentDebate.BearHistory)
	case "Bear Researcher":
		return RebuttalPrompt(reportsSection(state), state.InvestmentDebate.BearHistory, state.InvestmentDebate.BullHistory)
	case "Research Manager":
		return fmt.Sprintf("## Stage A reports\n%s\n\n## Investment debate transcript\n%s\n\nIssue the final investment recommendation.",
			reportsSection(state), orNone(state.InvestmentDebate.History))
	case "Risky Analyst":
		return riskPrompt(state, state.RiskDebate.RiskyHistory)
	case "Safe Analyst":
		return riskPrompt(state, state.RiskDebate.SafeHistory)
	case "Neutral Analyst":
		return riskPrompt(state, state.RiskDebate.NeutralHistory)
	case "Risk Manager":
		return fmt.Sprintf("## Trader's plan\n%s\n\n## Risk debate transcript\n%s\n\nIssue the final risk-adjusted decision.",
			state.TraderInvestmentPlan, orNone(state.RiskDebate.History))
	case "Trader":
		return fmt.Sprintf("## Stage A reports\n%s\n\n## Investment debate decision\n%s\n\nProduce the concrete trade plan.",
			reportsSection(state), state.InvestmentDebate.JudgeDecision)
	case "Report Generator":
		return fmt.Sprintf("## Trader's plan\n%s\n\n## Final trade decision\n%s\n\n## Report excerpts\n%s\n## Risk debate (tail)\n%s\n\nEmit the structured JSON summary described in your role definition.",
			state.TraderInvestmentPlan, state.FinalTradeDecision, reportsSection(state), tail(state.RiskDebate.History, 2000))
	default:
		return fmt.Sprintf("## Task\nProduce your analyst report for %s (%s) as of %s.", state.CompanyName, state.Symbol, state.TradeDate)
	}
}

// riskPrompt frames one risk-debate speaker's turn: the trader's plan, its
// own prior rounds, and the full three-way transcript for context.
func riskPrompt(state *AnalysisState, ownHistory string) string {
	return fmt.Sprintf("## Trader's plan\n%s\n\n## 回顾 / my previous\n%s\n\n## Full risk transcript\n%s",
		state.TraderInvestmentPlan, orNone(ownHistory), orNone(state.RiskDebate.History))
}

// tail keeps the last max runes of a transcript.
func tail(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return orNone(s)
	}
	return string(r[len(r)-max:])
}

func orNone(s string) string {
	if s == "" {
		return "(none yet)"
	}
	return s
}

// reportsSection renders every Stage-A report so far as sorted markdown
// sections, giving every downstream node a stable, deterministic view.
func reportsSection(state *AnalysisState) string {
	reports := state.AllReports()
	keys := make([]string, 0, len(reports))
	for k := range reports {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "### %s\n%s\n\n", k, reports[k])
	}
	return b.String()
}
