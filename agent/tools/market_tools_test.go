package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	llmtools "github.com/BaSui01/tradeflow/llm/tools"
	"github.com/BaSui01/tradeflow/market/orchestrator"
	"github.com/BaSui01/tradeflow/market/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func llmtoolsNewRegistry(t *testing.T) *llmtools.DefaultRegistry {
	t.Helper()
	return llmtools.NewDefaultRegistry(zap.NewNop())
}

type stubMarketSource struct {
	bars []providers.Bar
	err  error
}

func (s *stubMarketSource) Kline(ctx context.Context, req providers.KlineRequest) (orchestrator.Result[[]providers.Bar], error) {
	if s.err != nil {
		return orchestrator.Result[[]providers.Bar]{}, s.err
	}
	return orchestrator.Result[[]providers.Bar]{Value: s.bars, Origin: "stub"}, nil
}

func (s *stubMarketSource) DailyBasic(ctx context.Context, tradeDate time.Time) (orchestrator.Result[[]providers.DailyBasicRow], error) {
	return orchestrator.Result[[]providers.DailyBasicRow]{Origin: "stub"}, s.err
}

func (s *stubMarketSource) News(ctx context.Context, req providers.NewsRequest) (orchestrator.Result[[]providers.NewsItem], error) {
	return orchestrator.Result[[]providers.NewsItem]{Origin: "stub"}, s.err
}

func (s *stubMarketSource) QueryWithFallback(ctx context.Context, apiName string, kwargs map[string]any) (orchestrator.Result[[]map[string]any], error) {
	return orchestrator.Result[[]map[string]any]{Origin: "stub"}, s.err
}

func TestRegisterMarketTools_RegistersAllFour(t *testing.T) {
	registry := llmtoolsNewRegistry(t)
	require.NoError(t, RegisterMarketTools(registry, &stubMarketSource{}, zap.NewNop()))

	schemas := registry.List()
	names := make(map[string]bool, len(schemas))
	for _, s := range schemas {
		names[s.Name] = true
	}
	assert.True(t, names["get_kline"])
	assert.True(t, names["get_daily_basic"])
	assert.True(t, names["get_news"])
	assert.True(t, names["market_query"])
}

func TestKlineTool_ReturnsBarsAndSource(t *testing.T) {
	registry := llmtoolsNewRegistry(t)
	src := &stubMarketSource{bars: []providers.Bar{{Close: 10.5}}}
	require.NoError(t, RegisterMarketTools(registry, src, zap.NewNop()))

	fn, _, err := registry.Get("get_kline")
	require.NoError(t, err)

	out, err := fn(context.Background(), json.RawMessage(`{"code":"000001"}`))
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "stub", result["source"])
	assert.NotEmpty(t, result["bars"])
}

func TestDailyBasicTool_RejectsBadDate(t *testing.T) {
	registry := llmtoolsNewRegistry(t)
	require.NoError(t, RegisterMarketTools(registry, &stubMarketSource{}, zap.NewNop()))

	fn, _, err := registry.Get("get_daily_basic")
	require.NoError(t, err)

	_, err = fn(context.Background(), json.RawMessage(`{"trade_date":"not-a-date"}`))
	assert.Error(t, err)
}
