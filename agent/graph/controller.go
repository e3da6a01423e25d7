package graph

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// AnalystSpec is the (slug, role prompt, tool allow-list) triple the
// controller iterates to build Stage-A nodes. The controller never
// hard-codes which analysts exist — it enumerates whatever the caller
// passes in.
type AnalystSpec struct {
	Slug        string
	InternalKey string
	NodeLabel   string
	RolePrompt  string
	ToolNames   []string
}

// NodeExecutor runs one named node against the shared state and returns its
// textual output. A single interface serves every stage so the controller
// carries no per-node-type code paths.
type NodeExecutor interface {
	Execute(ctx context.Context, nodeLabel string, state *AnalysisState) (string, error)
}

// Config bounds the debate/risk-discussion stages.
type Config struct {
	MaxDebateRounds     int
	MaxRiskDiscussRounds int
}

// DefaultConfig is one debate round and one risk round.
func DefaultConfig() Config {
	return Config{MaxDebateRounds: 1, MaxRiskDiscussRounds: 1}
}

// Controller runs the sequential Stage A -> B -> C -> D state machine.
type Controller struct {
	executor NodeExecutor
	cfg      Config
	logger   *zap.Logger
}

// NewController builds a Controller. executor performs the actual LLM/tool
// work for a named node; cfg bounds the debate stages.
func NewController(executor NodeExecutor, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDebateRounds <= 0 {
		cfg.MaxDebateRounds = 1
	}
	if cfg.MaxRiskDiscussRounds <= 0 {
		cfg.MaxRiskDiscussRounds = 1
	}
	return &Controller{executor: executor, cfg: cfg, logger: logger.With(zap.String("component", "agent_graph"))}
}

// ProgressFunc is invoked once per completed node, carrying the node's
// label; the task manager resolves it to a display name/percent via
// agent/records' progress maps.
type ProgressFunc func(nodeLabel string)

// CancelFunc reports whether the run has been cancelled; the controller
// polls it between nodes, never mid-node.
type CancelFunc func() bool

// Run executes the full pipeline for the given analyst set. A node failure
// is recorded on state.LastError but never aborts the run early — Stage D
// still executes with the partial state, except when cancellation is
// observed between nodes, which ends the run immediately with cancelled=true.
func (c *Controller) Run(ctx context.Context, state *AnalysisState, analysts []AnalystSpec, onProgress ProgressFunc, cancelled CancelFunc) (isCancelled bool, err error) {
	if onProgress == nil {
		onProgress = func(string) {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	if cancelled() {
		return true, nil
	}

	if err := c.runStageA(ctx, state, analysts, onProgress); err != nil {
		return false, err
	}
	if cancelled() {
		return true, nil
	}

	if err := c.runStageB(ctx, state, onProgress); err != nil {
		return false, err
	}
	if cancelled() {
		return true, nil
	}

	if err := c.runStageC(ctx, state, onProgress); err != nil {
		return false, err
	}
	if cancelled() {
		return true, nil
	}

	if err := c.runStageD(ctx, state, onProgress); err != nil {
		return false, err
	}
	return false, nil
}

// runStageA runs one node per enabled analyst; edges are derived purely
// from the length of the analysts slice.
func (c *Controller) runStageA(ctx context.Context, state *AnalysisState, analysts []AnalystSpec, onProgress ProgressFunc) error {
	for _, spec := range analysts {
		out, err := c.executor.Execute(ctx, spec.NodeLabel, state)
		if err != nil {
			c.logger.Warn("analyst node failed, continuing", zap.String("slug", spec.Slug), zap.Error(err))
			state.SetLastError(err)
			onProgress(spec.NodeLabel)
			continue
		}
		state.WriteReport(spec.InternalKey, out)
		onProgress(spec.NodeLabel)
	}
	return nil
}

// runStageB runs the bull/bear rounds, then the research manager (whose
// output is the consolidated investment plan), then the trader (whose
// output is the actionable plan the risk stage argues over).
func (c *Controller) runStageB(ctx context.Context, state *AnalysisState, onProgress ProgressFunc) error {
	round := 0
	for {
		speaker, done := NextDebateSpeaker(state.InvestmentDebate, c.cfg.MaxDebateRounds)
		if done {
			break
		}

		out, err := c.executor.Execute(ctx, speaker, state)
		if err != nil {
			c.logger.Warn("debate node failed, continuing", zap.String("speaker", speaker), zap.Error(err))
			state.SetLastError(err)
			onProgress(speaker)
			break
		}
		AppendDebateRound(&state.InvestmentDebate, speaker, out, round)
		onProgress(speaker)
		round++
	}

	out, err := c.executor.Execute(ctx, "Research Manager", state)
	if err != nil {
		state.SetLastError(err)
	} else {
		state.InvestmentDebate.JudgeDecision = out
	}
	onProgress("Research Manager")

	plan, err := c.executor.Execute(ctx, "Trader", state)
	if err != nil {
		state.SetLastError(err)
	} else {
		state.TraderInvestmentPlan = plan
	}
	onProgress("Trader")
	return nil
}

// runStageC runs the risky/safe/neutral rotation and ends with the risk
// judge, whose verdict is the final trade decision.
func (c *Controller) runStageC(ctx context.Context, state *AnalysisState, onProgress ProgressFunc) error {
	round := 0
	for {
		speaker, done := NextRiskSpeaker(state.RiskDebate, c.cfg.MaxRiskDiscussRounds)
		if done {
			break
		}

		out, err := c.executor.Execute(ctx, speaker, state)
		if err != nil {
			c.logger.Warn("risk debate node failed, continuing", zap.String("speaker", speaker), zap.Error(err))
			state.SetLastError(err)
			onProgress(speaker)
			break
		}
		AppendRiskRound(&state.RiskDebate, speaker, out, round)
		onProgress(speaker)
		round++
	}

	out, err := c.executor.Execute(ctx, "Risk Manager", state)
	if err != nil {
		state.SetLastError(err)
	} else {
		state.RiskDebate.JudgeDecision = out
		state.SetFinalTradeDecision(out)
	}
	onProgress("Risk Manager")
	return nil
}

func (c *Controller) runStageD(ctx context.Context, state *AnalysisState, onProgress ProgressFunc) error {
	summaryText, err := c.executor.Execute(ctx, "Report Generator", state)
	if err != nil {
		state.SetLastError(err)
		state.StructuredSummary = deterministicDefaultSummary(state)
		onProgress("Report Generator")
		return nil
	}

	summary, perr := ParseStructuredSummary(summaryText)
	if perr != nil {
		c.logger.Warn("structured summary parse failed, using deterministic default", zap.Error(perr))
		summary = deterministicDefaultSummary(state)
	}
	if hasFetchFailureMarker(state) {
		// No usable upstream data: the agent must not fabricate numbers.
		summary.ModelConfidence = 0
		summary.DataUnavailable = true
		summary.RiskAssessment.Description = "data unavailable"
	}
	state.StructuredSummary = summary
	onProgress("Report Generator")
	return nil
}

// deterministicDefaultSummary is the fallback emitted when the summary
// agent's JSON cannot be parsed: confidence 50, Hold, Medium risk.
func deterministicDefaultSummary(state *AnalysisState) *StructuredSummary {
	return &StructuredSummary{
		FinalSignal:     "Hold",
		ModelConfidence: 50,
		RiskAssessment:  RiskAssessment{Level: "Medium", Score: 5},
		AnalysisSummary: fmt.Sprintf("Unable to produce a structured summary for %s; defaulting to Hold.", state.Symbol),
	}
}

// hasFetchFailureMarker reports whether the upstream reports clearly show
// that no data was fetched: a tool-failure marker in a report body, or an
// analyst node that produced no report at all.
func hasFetchFailureMarker(state *AnalysisState) bool {
	reports := state.AllReports()
	if len(reports) == 0 {
		return true
	}
	for _, v := range reports {
		if v == "" || strings.Contains(v, "❌") {
			return true
		}
	}
	return false
}
