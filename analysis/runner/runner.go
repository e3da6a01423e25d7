// Package runner wires the agent graph controller and progress broadcaster
// together into the analysis/tasks.Runner interface, the "LLM + tools +
// graph" glue the task manager drives one task run through.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/tradeflow/agent/graph"
	"github.com/BaSui01/tradeflow/agent/persistence"
	"github.com/BaSui01/tradeflow/agent/records"
	agenttools "github.com/BaSui01/tradeflow/agent/tools"
	"github.com/BaSui01/tradeflow/analysis/progress"
	"github.com/BaSui01/tradeflow/llm"
	"github.com/BaSui01/tradeflow/llm/circuitbreaker"
	llmtools "github.com/BaSui01/tradeflow/llm/tools"
	"github.com/BaSui01/tradeflow/market/providers"
	"go.uber.org/zap"
)

// toolSource adapts the shared tool registry, a per-task breaker set, and
// the MCP bridge's bridged-name detector into graph.ToolSource, so every
// node in one task run shares the same filtered schema list and a
// breaker-wrapped executor.
type toolSource struct {
	registry     llmtools.ToolRegistry
	registryExec llmtools.ToolExecutor
	availability agenttools.ProviderAvailability
	breakers     *agenttools.TaskBreakers
	mcp          agenttools.MCPTool
}

func (s *toolSource) SchemasFor(record records.Record) []llm.ToolSchema {
	return agenttools.FilteredTools(s.registry.List(), record, s.availability)
}

func (s *toolSource) ExecutorFor(record records.Record) llmtools.ToolExecutor {
	return &agenttools.TaskToolExecutor{Registry: s.registryExec, Breakers: s.breakers, MCP: s.mcp}
}

// Runner implements analysis/tasks.Runner by driving agent/graph.Controller
// for one equity-analysis task at a time.
type Runner struct {
	provider          llm.Provider
	records           *records.Store
	registry          llmtools.ToolRegistry
	registryExec      llmtools.ToolExecutor
	availability      agenttools.ProviderAvailability
	mcp               agenttools.MCPTool
	broadcaster       *progress.Broadcaster
	breakerCfg        *circuitbreaker.Config
	graphCfg          graph.Config
	maxToolIterations int
	logger            *zap.Logger

	// states keeps each task's AnalysisState resident after the run so the
	// Result Hydrator's memory layer can serve it; an entry stays until
	// Evict is called for its task ID.
	states sync.Map // taskID -> *graph.AnalysisState
}

// Config bounds the graph run; zero values fall back to graph.DefaultConfig
// and a 10-iteration ReAct cap.
type Config struct {
	MaxDebateRounds      int
	MaxRiskDiscussRounds int
	MaxToolIterations    int
}

// New builds a Runner. availability and mcp may be nil (every tool treated
// as always-available / never MCP-bridged, respectively).
func New(
	provider llm.Provider,
	recordStore *records.Store,
	registry llmtools.ToolRegistry,
	registryExec llmtools.ToolExecutor,
	availability agenttools.ProviderAvailability,
	mcp agenttools.MCPTool,
	broadcaster *progress.Broadcaster,
	breakerCfg *circuitbreaker.Config,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	gc := graph.DefaultConfig()
	if cfg.MaxDebateRounds > 0 {
		gc.MaxDebateRounds = cfg.MaxDebateRounds
	}
	if cfg.MaxRiskDiscussRounds > 0 {
		gc.MaxRiskDiscussRounds = cfg.MaxRiskDiscussRounds
	}
	maxIter := cfg.MaxToolIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	return &Runner{
		provider:          provider,
		records:           recordStore,
		registry:          registry,
		registryExec:      registryExec,
		availability:      availability,
		mcp:               mcp,
		broadcaster:       broadcaster,
		breakerCfg:        breakerCfg,
		graphCfg:          gc,
		maxToolIterations: maxIter,
		logger:            logger.With(zap.String("component", "analysis_runner")),
	}
}

// RunAnalysis implements analysis/tasks.Runner.
func (r *Runner) RunAnalysis(ctx context.Context, task *persistence.AsyncTask, cancelled func() bool) (map[string]any, error) {
	symbol, _ := task.Input["symbol"].(string)
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("analysis runner: task %s has no symbol", task.ID)
	}
	slugs := toStringSlice(task.Input["analysts"])

	specs, enabledRecords, err := r.resolveAnalysts(slugs)
	if err != nil {
		return nil, err
	}

	sym := providers.ParseSymbol(symbol)
	state := graph.NewAnalysisState(symbol, symbol, time.Now().Format("2006-01-02"), sym.Currency)
	r.states.Store(task.ID, state)

	breakers := agenttools.NewTaskBreakers(r.breakerCfg, r.logger)
	defer breakers.Release()

	tools := &toolSource{
		registry:     r.registry,
		registryExec: r.registryExec,
		availability: r.availability,
		breakers:     breakers,
		mcp:          r.mcp,
	}
	executor := graph.NewLLMNodeExecutor(r.provider, r.records, tools, r.maxToolIterations, r.logger)
	controller := graph.NewController(executor, r.graphCfg, r.logger)

	progressMaps := records.BuildProgressMaps(enabledRecords, r.records.All())
	onProgress := func(nodeLabel string) {
		display, ok := progressMaps.NodeLabelToDisplayName[nodeLabel]
		if !ok {
			display = nodeLabel
		}
		percent := progressMaps.DisplayNameToPercent[display]
		r.broadcaster.Publish(ctx, task.ID, nodeLabel, display, percent, display+" 完成")
	}

	isCancelled, err := controller.Run(ctx, state, specs, onProgress, cancelled)
	r.broadcaster.MarkTerminal(task.ID)
	if err != nil {
		return nil, err
	}
	if isCancelled {
		return nil, fmt.Errorf("analysis runner: task %s cancelled", task.ID)
	}

	return buildResult(state), nil
}

// Lookup implements analysis/hydrate.MemorySource: it resolves a task_id
// to its still-resident AnalysisState, if any.
func (r *Runner) Lookup(taskID string) (*graph.AnalysisState, bool) {
	v, ok := r.states.Load(taskID)
	if !ok {
		return nil, false
	}
	return v.(*graph.AnalysisState), true
}

// Evict drops a task's resident state; later result lookups fall through
// to the doc store / task row / filesystem layers.
func (r *Runner) Evict(taskID string) {
	r.states.Delete(taskID)
}

// resolveAnalysts turns the request's analyst slugs into AnalystSpecs (for
// the controller) and Records (for the progress-map percent distribution),
// in submission order. An unknown slug is a hard error: it means the
// request referenced an analyst the record store never loaded.
func (r *Runner) resolveAnalysts(slugs []string) ([]graph.AnalystSpec, []records.Record, error) {
	specs := make([]graph.AnalystSpec, 0, len(slugs))
	recs := make([]records.Record, 0, len(slugs))
	for _, slug := range slugs {
		rec, ok := r.records.BySlug(slug)
		if !ok {
			return nil, nil, fmt.Errorf("analysis runner: unknown analyst slug %q", slug)
		}
		key := records.InternalKey(rec.Slug)
		specs = append(specs, graph.AnalystSpec{
			Slug:        rec.Slug,
			InternalKey: key,
			NodeLabel:   records.DeriveNodeLabel(key),
			RolePrompt:  rec.RoleDefinition,
			ToolNames:   rec.Tools,
		})
		recs = append(recs, rec)
	}
	return specs, recs, nil
}

// buildResult extracts the final map[string]any result from a completed
// AnalysisState in the shape the result hydrator reads from its task-row
// layer (reports, recommendation, summary, key_points).
func buildResult(state *graph.AnalysisState) map[string]any {
	decision, _ := state.FinalDecision()
	out := map[string]any{
		"symbol":               state.Symbol,
		"reports":              state.AllReports(),
		"final_trade_decision": decision,
	}
	if state.StructuredSummary != nil {
		out["recommendation"] = state.StructuredSummary.InvestmentRecommendation
		out["summary"] = state.StructuredSummary.AnalysisSummary
		out["key_points"] = state.StructuredSummary.AnalysisReference
		out["final_signal"] = state.StructuredSummary.FinalSignal
		out["model_confidence"] = state.StructuredSummary.ModelConfidence
		out["data_unavailable"] = state.StructuredSummary.DataUnavailable
		out["structured_summary"] = state.StructuredSummary
	}
	if state.LastError != "" {
		out["last_error"] = state.LastError
	}
	return out
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
