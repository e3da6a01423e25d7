package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	calls []string
	fn    func(nodeLabel string) (string, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, nodeLabel string, state *AnalysisState) (string, error) {
	f.calls = append(f.calls, nodeLabel)
	if f.fn != nil {
		return f.fn(nodeLabel)
	}
	return nodeLabel + " output", nil
}

func TestController_Run_FullPipeline(t *testing.T) {
	exec := &fakeExecutor{fn: func(label string) (string, error) {
		if label == "Report Generator" {
			return `{"final_signal":"Buy","model_confidence":80,"analysis_summary":"looks good","risk_assessment":{"level":"Low","score":2}}`, nil
		}
		return label + " output", nil
	}}

	c := NewController(exec, Config{MaxDebateRounds: 1, MaxRiskDiscussRounds: 1}, nil)
	state := NewAnalysisState("600519", "Kweichow Moutai", "2026-07-31", "CNY")

	analysts := []AnalystSpec{
		{Slug: "market-analyst", InternalKey: "market", NodeLabel: "Market Analyst"},
		{Slug: "news-analyst", InternalKey: "news", NodeLabel: "News Analyst"},
	}

	var progressed []string
	cancelled, err := c.Run(context.Background(), state, analysts, func(label string) {
		progressed = append(progressed, label)
	}, nil)

	require.NoError(t, err)
	assert.False(t, cancelled)

	report, ok := state.Report("market")
	require.True(t, ok)
	assert.Equal(t, "Market Analyst output", report)

	require.NotNil(t, state.StructuredSummary)
	assert.Equal(t, "Buy", state.StructuredSummary.FinalSignal)
	assert.Equal(t, float64(80), state.StructuredSummary.ModelConfidence)

	assert.NotEmpty(t, state.FinalTradeDecision)
	assert.Equal(t, "Risk Manager output", state.FinalTradeDecision, "risk judge verdict is the final decision")
	assert.Equal(t, "Trader output", state.TraderInvestmentPlan)

	// Node order follows the fixed progress anchors: trader between the
	// research manager and the risk debate.
	idx := func(label string) int {
		for i, l := range progressed {
			if l == label {
				return i
			}
		}
		return -1
	}
	assert.Less(t, idx("Research Manager"), idx("Trader"))
	assert.Less(t, idx("Trader"), idx("Risky Analyst"))
	assert.Less(t, idx("Risk Manager"), idx("Report Generator"))
	assert.Contains(t, progressed, "Market Analyst")
}

func TestController_Run_CancelledBetweenNodes(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewController(exec, DefaultConfig(), nil)
	state := NewAnalysisState("600519", "x", "2026-07-31", "CNY")

	calls := 0
	cancelFn := func() bool {
		calls++
		return calls > 1 // run once, then cancel
	}

	cancelled, err := c.Run(context.Background(), state, []AnalystSpec{
		{Slug: "market-analyst", InternalKey: "market", NodeLabel: "Market Analyst"},
	}, nil, cancelFn)

	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestController_Run_NodeFailureDoesNotAbort(t *testing.T) {
	exec := &fakeExecutor{fn: func(label string) (string, error) {
		if label == "Market Analyst" {
			return "", fmt.Errorf("llm timeout")
		}
		if label == "Report Generator" {
			return `{"final_signal":"Hold","model_confidence":50}`, nil
		}
		return label + " output", nil
	}}

	c := NewController(exec, DefaultConfig(), nil)
	state := NewAnalysisState("600519", "x", "2026-07-31", "CNY")

	cancelled, err := c.Run(context.Background(), state, []AnalystSpec{
		{Slug: "market-analyst", InternalKey: "market", NodeLabel: "Market Analyst"},
	}, nil, nil)

	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.NotEmpty(t, state.LastError)
	require.NotNil(t, state.StructuredSummary, "Stage D must still run after a Stage A node failure")
}

func TestParseStructuredSummary_StripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"final_signal\":\"Sell\",\"model_confidence\":60}\n```"
	summary, err := ParseStructuredSummary(raw)
	require.NoError(t, err)
	assert.Equal(t, "Sell", summary.FinalSignal)
}

func TestParseStructuredSummary_RejectsInvalidSignal(t *testing.T) {
	_, err := ParseStructuredSummary(`{"final_signal":"Maybe"}`)
	assert.Error(t, err)
}

func TestParseStructuredSummary_NormalizesRanges(t *testing.T) {
	summary, err := ParseStructuredSummary(`{"final_signal":"Buy","model_confidence":150,"risk_assessment":{"level":"Extreme","score":42}}`)
	require.NoError(t, err)
	assert.Equal(t, float64(100), summary.ModelConfidence)
	assert.Equal(t, float64(10), summary.RiskAssessment.Score)
	assert.Equal(t, "Medium", summary.RiskAssessment.Level)
}

func TestController_Run_DataUnavailableForcesZeroConfidence(t *testing.T) {
	exec := &fakeExecutor{fn: func(label string) (string, error) {
		if label == "Market Analyst" {
			return "❌ tool get_kline failed: no data; please try another tool or record this limitation in the final report.", nil
		}
		if label == "Report Generator" {
			return `{"final_signal":"Buy","model_confidence":90}`, nil
		}
		return label + " output", nil
	}}

	c := NewController(exec, DefaultConfig(), nil)
	state := NewAnalysisState("FAKE0000", "x", "2026-07-31", "USD")

	_, err := c.Run(context.Background(), state, []AnalystSpec{
		{Slug: "market-analyst", InternalKey: "market", NodeLabel: "Market Analyst"},
	}, nil, nil)

	require.NoError(t, err)
	require.NotNil(t, state.StructuredSummary)
	assert.Equal(t, float64(0), state.StructuredSummary.ModelConfidence, "fabricating confidence over failed fetches is forbidden")
	assert.True(t, state.StructuredSummary.DataUnavailable)
	assert.Equal(t, "data unavailable", state.StructuredSummary.RiskAssessment.Description)
}
