package hydrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BaSui01/tradeflow/agent/graph"
	"github.com/BaSui01/tradeflow/agent/persistence"
	"go.uber.org/zap"
)

// MemorySource resolves a task_id to its still-resident in-memory analysis
// state, if any. Implemented by analysis/runner.Runner, which keeps live
// *graph.AnalysisState for running/just-finished tasks.
type MemorySource interface {
	Lookup(taskID string) (*graph.AnalysisState, bool)
}

// DocStore resolves a task_id (or a fallback analysis_id) to its
// previously-persisted hydrated report document.
type DocStore interface {
	GetReport(ctx context.Context, taskID string) (map[string]any, error)
}

// coreReportOrder is the priority order used when deriving `summary` from
// the first few reports.
var coreReportOrder = []string{"market_report", "fundamentals_report", "sentiment_report", "news_report"}

// recommendationWhitelist is consulted, longest-first, when no decision
// object is available to derive a recommendation from.
var recommendationWhitelist = []string{"trader_investment_plan", "investment_plan", "final_trade_decision"}

const maxSummaryChars = 3000

// Hydrator assembles Result objects from the layered sources.
type Hydrator struct {
	memory    MemorySource
	docs      DocStore
	taskStore persistence.TaskStore
	runtimeDir string
	logger    *zap.Logger
}

// Config configures a Hydrator.
type Config struct {
	RuntimeDir string // root of <runtime>/<symbol>/<date>/reports/*.md
}

// New builds a Hydrator. Any of memory/docs/taskStore may be nil — a nil
// source is simply skipped in the merge.
func New(memory MemorySource, docs DocStore, taskStore persistence.TaskStore, cfg Config, logger *zap.Logger) *Hydrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hydrator{
		memory:     memory,
		docs:       docs,
		taskStore:  taskStore,
		runtimeDir: cfg.RuntimeDir,
		logger:     logger.With(zap.String("component", "result_hydrator")),
	}
}

// Hydrate produces the uniform Result for taskID, merging layers in order
// (memory -> doc store -> task-row embedded result -> filesystem), each
// later layer only filling gaps the earlier ones left empty, then runs
// inference and defensive coercion.
func (h *Hydrator) Hydrate(ctx context.Context, taskID string) (*Result, error) {
	result := newResult(taskID)

	if h.memory != nil {
		if state, ok := h.memory.Lookup(taskID); ok {
			h.mergeMemoryState(result, state)
		}
	}

	var task *persistence.AsyncTask
	if h.taskStore != nil {
		t, err := h.taskStore.GetTask(ctx, taskID)
		if err != nil {
			h.logger.Warn("task store unavailable during hydration", zap.String("task_id", taskID), zap.Error(err))
			result.MemoryOnly = len(result.Reports) > 0 || result.Recommendation != "" || result.Summary != ""
		} else {
			task = t
		}
	}

	if h.docs != nil {
		analysisID := taskID
		if task != nil {
			if aid, ok := task.Input["analysis_id"].(string); ok && aid != "" {
				analysisID = aid
			}
		}
		if doc, err := h.docs.GetReport(ctx, analysisID); err == nil && doc != nil {
			h.mergeRawDocument(result, doc, "docstore")
		}
	}

	if task != nil {
		if resultMap := asStringMap(task.Result); resultMap != nil {
			h.mergeRawDocument(result, resultMap, "task_row")
		}
	}

	if h.runtimeDir != "" && task != nil {
		symbol, _ := task.Input["symbol"].(string)
		if symbol != "" {
			date := task.CreatedAt.Format("2006-01-02")
			h.mergeFilesystemReports(result, symbol, date)
		}
	}

	h.infer(result)

	return result, nil
}

func (h *Hydrator) mergeMemoryState(r *Result, state *graph.AnalysisState) {
	for key, content := range state.AllReports() {
		r.setReport(key, content, "memory")
	}
	if plan := state.TraderInvestmentPlan; plan != "" {
		r.setReport("trader_investment_plan", plan, "memory")
	}
	if decision := state.InvestmentDebate.JudgeDecision; decision != "" {
		r.setReport("investment_plan", decision, "memory")
	}
	if final, ok := state.FinalDecision(); ok {
		r.setReport("final_trade_decision", final, "memory")
		r.setDecision(map[string]any{"final_trade_decision": final}, "memory")
	}
	if state.InvestmentDebate.BullHistory != "" {
		r.setReport("bull_history", state.InvestmentDebate.BullHistory, "memory")
	}
	if state.InvestmentDebate.BearHistory != "" {
		r.setReport("bear_history", state.InvestmentDebate.BearHistory, "memory")
	}
}

func (h *Hydrator) mergeRawDocument(r *Result, doc map[string]any, source string) {
	if reports := asStringMap(doc["reports"]); reports != nil {
		for key, raw := range coerceReports(reports) {
			r.setReport(key, raw, source)
		}
	}
	r.setRecommendation(toString(doc["recommendation"], ""), source)
	r.setSummary(toString(doc["summary"], ""), source)
	r.setKeyPoints(toStringSlice(doc["key_points"]), source)
	if decision := asStringMap(doc["decision"]); decision != nil {
		r.setDecision(decision, source)
	}
}

func (h *Hydrator) mergeFilesystemReports(r *Result, symbol, date string) {
	pattern := filepath.Join(h.runtimeDir, symbol, date, "reports", "*.md")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		h.logger.Warn("filesystem report glob failed", zap.String("pattern", pattern), zap.Error(err))
		return
	}
	sort.Strings(matches)
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		r.setReport(key, string(data), "filesystem")
	}
}

// infer derives recommendation/summary/key_points when the layered merge
// left them empty.
func (h *Hydrator) infer(r *Result) {
	if r.Recommendation == "" {
		if r.Decision != nil {
			r.Recommendation = fmt.Sprintf("%s (target: %s, confidence: %s)",
				toString(r.Decision["action"], "Hold"),
				toString(r.Decision["target_price"], "n/a"),
				toString(r.Decision["confidence"], "n/a"))
			r.Sources["recommendation"] = "inferred"
		} else {
			longestKey, longest := "", ""
			for _, key := range recommendationWhitelist {
				if v, ok := r.Reports[key]; ok && len(v) > len(longest) {
					longestKey, longest = key, v
				}
			}
			if longest != "" {
				r.Recommendation = longest
				r.Sources["recommendation"] = "inferred:" + longestKey
			}
		}
	}

	if r.Summary == "" {
		var b strings.Builder
		for _, key := range coreReportOrder {
			if v, ok := r.Reports[key]; ok {
				appendBounded(&b, v, maxSummaryChars)
			}
		}
		if b.Len() < maxSummaryChars {
			keys := make([]string, 0, len(r.Reports))
			for k := range r.Reports {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if strings.HasSuffix(k, "_report") && !containsString(coreReportOrder, k) {
					appendBounded(&b, r.Reports[k], maxSummaryChars)
				}
			}
		}
		if b.Len() > 0 {
			r.Summary = b.String()
			r.Sources["summary"] = "inferred"
		}
	}

	if len(r.KeyPoints) == 0 {
		var points []string
		if r.Decision != nil {
			if action := toString(r.Decision["action"], ""); action != "" {
				points = append(points, "Action: "+action)
			}
		}
		for _, key := range []string{"trader_investment_plan", "investment_plan"} {
			if v, ok := r.Reports[key]; ok {
				points = append(points, firstSentence(v))
			}
			if len(points) >= 5 {
				break
			}
		}
		if len(points) > 5 {
			points = points[:5]
		}
		if len(points) > 0 {
			r.KeyPoints = points
			r.Sources["key_points"] = "inferred"
		}
	}
}

func appendBounded(b *strings.Builder, s string, max int) {
	remaining := max - b.Len()
	if remaining <= 0 {
		return
	}
	if len(s) > remaining {
		s = s[:remaining]
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(s)
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "。.\n"); idx > 0 {
		return s[:idx]
	}
	if len(s) > 120 {
		return s[:120]
	}
	return s
}
