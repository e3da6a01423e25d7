package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/tradeflow/llm"
	llmtools "github.com/BaSui01/tradeflow/llm/tools"
	"github.com/BaSui01/tradeflow/market/orchestrator"
	"github.com/BaSui01/tradeflow/market/providers"
	"go.uber.org/zap"
)

// MarketSource is the subset of market/orchestrator.Orchestrator the tool
// layer depends on, kept narrow so tests can stub it without building a
// full adapter fleet.
type MarketSource interface {
	Kline(ctx context.Context, req providers.KlineRequest) (orchestrator.Result[[]providers.Bar], error)
	DailyBasic(ctx context.Context, tradeDate time.Time) (orchestrator.Result[[]providers.DailyBasicRow], error)
	News(ctx context.Context, req providers.NewsRequest) (orchestrator.Result[[]providers.NewsItem], error)
	QueryWithFallback(ctx context.Context, apiName string, kwargs map[string]any) (orchestrator.Result[[]map[string]any], error)
}

// RegisterMarketTools wires the four market-data operations an orchestrator
// exposes into the shared tool registry, so FilteredTools/Execute can reach
// them like any other declared tool. Each tool's Result carries the
// winning adapter's name under the "source" key, matching the fanout
// contract in market/orchestrator's doc comment.
func RegisterMarketTools(registry llmtools.ToolRegistry, source MarketSource, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := registry.Register("get_kline", klineTool(source), llmtools.ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "get_kline",
			Description: "Fetch OHLCV bars for a symbol over a period (day/week/month/Nmin), with optional price adjustment.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"code":{"type":"string"},"period":{"type":"string"},"limit":{"type":"integer"},"adjustment":{"type":"string"}},"required":["code"]}`),
		},
		Timeout: 15 * time.Second,
	}); err != nil {
		return fmt.Errorf("register get_kline: %w", err)
	}

	if err := registry.Register("get_daily_basic", dailyBasicTool(source), llmtools.ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "get_daily_basic",
			Description: "Fetch per-symbol fundamentals (PE, PB, turnover, market cap) for a trading day.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"trade_date":{"type":"string","description":"YYYY-MM-DD"}},"required":["trade_date"]}`),
		},
		Timeout: 15 * time.Second,
	}); err != nil {
		return fmt.Errorf("register get_daily_basic: %w", err)
	}

	if err := registry.Register("get_news", newsTool(source), llmtools.ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "get_news",
			Description: "Fetch recent news and announcements for a symbol.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"code":{"type":"string"},"days":{"type":"integer"},"limit":{"type":"integer"},"include_announcements":{"type":"boolean"}},"required":["code"]}`),
		},
		Timeout: 15 * time.Second,
	}); err != nil {
		return fmt.Errorf("register get_news: %w", err)
	}

	if err := registry.Register("market_query", queryTool(source), llmtools.ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "market_query",
			Description: "Generic escape hatch for long-tail market-data operations not covered by the other tools.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"api_name":{"type":"string"},"kwargs":{"type":"object"}},"required":["api_name"]}`),
		},
		Timeout: 20 * time.Second,
	}); err != nil {
		return fmt.Errorf("register market_query: %w", err)
	}

	logger.Info("market tools registered")
	return nil
}

func klineTool(source MarketSource) llmtools.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Code       string `json:"code"`
			Period     string `json:"period"`
			Limit      int    `json:"limit"`
			Adjustment string `json:"adjustment"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		period := providers.Period(in.Period)
		if period == "" {
			period = providers.PeriodDay
		}
		adj := providers.Adjustment(in.Adjustment)
		if adj == "" {
			adj = providers.AdjustFwd
		}
		res, err := source.Kline(ctx, providers.KlineRequest{Code: in.Code, Period: period, Limit: in.Limit, Adjustment: adj})
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"bars": res.Value, "source": res.Origin})
	}
}

func dailyBasicTool(source MarketSource) llmtools.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			TradeDate string `json:"trade_date"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		tradeDate, err := time.Parse("2006-01-02", in.TradeDate)
		if err != nil {
			return nil, fmt.Errorf("invalid trade_date: %w", err)
		}
		res, err := source.DailyBasic(ctx, tradeDate)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"rows": res.Value, "source": res.Origin})
	}
}

func newsTool(source MarketSource) llmtools.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Code                 string `json:"code"`
			Days                 int    `json:"days"`
			Limit                int    `json:"limit"`
			IncludeAnnouncements bool   `json:"include_announcements"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		res, err := source.News(ctx, providers.NewsRequest{Code: in.Code, Days: in.Days, Limit: in.Limit, IncludeAnnouncements: in.IncludeAnnouncements})
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"items": res.Value, "source": res.Origin})
	}
}

func queryTool(source MarketSource) llmtools.ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			APIName string         `json:"api_name"`
			Kwargs  map[string]any `json:"kwargs"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		res, err := source.QueryWithFallback(ctx, in.APIName, in.Kwargs)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"rows": res.Value, "source": res.Origin})
	}
}
