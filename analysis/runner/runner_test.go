package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/tradeflow/agent/persistence"
	"github.com/BaSui01/tradeflow/agent/records"
	"github.com/BaSui01/tradeflow/analysis/progress"
	"github.com/BaSui01/tradeflow/llm"
	llmtools "github.com/BaSui01/tradeflow/llm/tools"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	content string
}

func (p *stubProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: p.content}}}}, nil
}
func (p *stubProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}
func (p *stubProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}
func (p *stubProvider) Name() string                            { return "stub" }
func (p *stubProvider) SupportsNativeFunctionCalling() bool      { return false }
func (p *stubProvider) ListModels(ctx context.Context) ([]llm.Model, error) { return nil, nil }

func newSingleAnalystStore(t *testing.T) *records.Store {
	t.Helper()
	dir := t.TempDir()
	content := `customModes:
  - slug: market-analyst
    name: "市场分析师"
    roleDefinition: "You analyze price action."
  - slug: bull-researcher
    name: "看涨研究员"
    roleDefinition: "You argue bullish."
  - slug: bear-researcher
    name: "看跌研究员"
    roleDefinition: "You argue bearish."
  - slug: research-manager
    name: "研究经理"
    roleDefinition: "You judge the debate."
  - slug: trader
    name: "交易员"
    roleDefinition: "You produce the trade plan."
  - slug: risky-analyst
    name: "激进分析师"
    roleDefinition: "You argue risk-on."
  - slug: safe-analyst
    name: "保守分析师"
    roleDefinition: "You argue risk-off."
  - slug: neutral-analyst
    name: "中性分析师"
    roleDefinition: "You argue neutral."
  - slug: risk-manager
    name: "风险经理"
    roleDefinition: "You judge the risk debate."
  - slug: report-generator
    name: "报告生成器"
    roleDefinition: "You emit: {\"final_signal\":\"Hold\",\"model_confidence\":50,\"analysis_summary\":\"ok\",\"investment_recommendation\":\"Hold\"}"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "phase1_agents_config.yaml"), []byte(content), 0o644))
	store := records.NewStore(dir, nil)
	_, err := store.LoadPhase(1)
	require.NoError(t, err)
	return store
}

func TestRunner_RunAnalysis_ProducesResultAndPublishesProgress(t *testing.T) {
	store := newSingleAnalystStore(t)
	provider := &stubProvider{content: `{"final_signal":"Hold","model_confidence":50,"analysis_summary":"ok","investment_recommendation":"Hold","risk_assessment":{"level":"Low","score":2}}`}
	registry := llmtools.NewDefaultRegistry(zap.NewNop())
	registryExec := llmtools.NewDefaultExecutor(registry, zap.NewNop())
	broadcaster := progress.NewBroadcaster(zap.NewNop())

	r := New(provider, store, registry, registryExec, nil, nil, broadcaster, nil, Config{}, zap.NewNop())

	task := &persistence.AsyncTask{
		ID:    "task-1",
		Input: map[string]interface{}{"symbol": "AAPL", "analysts": []string{"market-analyst"}},
	}

	sub := broadcaster.Subscribe(task.ID)
	defer broadcaster.Unsubscribe(task.ID, sub)

	result, err := r.RunAnalysis(context.Background(), task, func() bool { return false })
	require.NoError(t, err)
	require.Equal(t, "Hold", result["recommendation"])
	require.NotEmpty(t, result["reports"])

	select {
	case ev := <-sub.Events():
		require.NotEmpty(t, ev.Node)
	default:
		t.Fatal("expected at least one progress event")
	}
}

func TestRunner_RunAnalysis_UnknownAnalystErrors(t *testing.T) {
	store := newSingleAnalystStore(t)
	provider := &stubProvider{content: "x"}
	registry := llmtools.NewDefaultRegistry(zap.NewNop())
	registryExec := llmtools.NewDefaultExecutor(registry, zap.NewNop())
	broadcaster := progress.NewBroadcaster(zap.NewNop())

	r := New(provider, store, registry, registryExec, nil, nil, broadcaster, nil, Config{}, zap.NewNop())
	task := &persistence.AsyncTask{ID: "task-2", Input: map[string]interface{}{"symbol": "AAPL", "analysts": []string{"no-such-analyst"}}}

	_, err := r.RunAnalysis(context.Background(), task, func() bool { return false })
	require.Error(t, err)
}

func TestRunner_RunAnalysis_CancelledBeforeStart(t *testing.T) {
	store := newSingleAnalystStore(t)
	provider := &stubProvider{content: "x"}
	registry := llmtools.NewDefaultRegistry(zap.NewNop())
	registryExec := llmtools.NewDefaultExecutor(registry, zap.NewNop())
	broadcaster := progress.NewBroadcaster(zap.NewNop())

	r := New(provider, store, registry, registryExec, nil, nil, broadcaster, nil, Config{}, zap.NewNop())
	task := &persistence.AsyncTask{ID: "task-3", Input: map[string]interface{}{"symbol": "AAPL", "analysts": []string{"market-analyst"}}}

	_, err := r.RunAnalysis(context.Background(), task, func() bool { return true })
	require.Error(t, err)
}

func TestRunner_RunAnalysis_MissingSymbolErrors(t *testing.T) {
	store := newSingleAnalystStore(t)
	provider := &stubProvider{content: "x"}
	registry := llmtools.NewDefaultRegistry(zap.NewNop())
	registryExec := llmtools.NewDefaultExecutor(registry, zap.NewNop())
	broadcaster := progress.NewBroadcaster(zap.NewNop())

	r := New(provider, store, registry, registryExec, nil, nil, broadcaster, nil, Config{}, zap.NewNop())
	task := &persistence.AsyncTask{ID: "task-4", Input: map[string]interface{}{"analysts": []string{"market-analyst"}}}

	_, err := r.RunAnalysis(context.Background(), task, func() bool { return false })
	require.Error(t, err)
}
