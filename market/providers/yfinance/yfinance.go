// Package yfinance implements the providers.Adapter contract over a
// Yahoo-Finance-style US/HK data source. It has no daily_basic capability;
// calls to DailyBasic always return "no data" rather than an error.
package yfinance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
	"go.uber.org/zap"
)

// Config configures the yfinance adapter.
type Config struct {
	BaseURL  string
	Priority int
	Timeout  time.Duration
}

// DefaultConfig returns sane defaults; priority 5 makes yfinance the
// fallback for US/HK symbols behind the mainland sources.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://query1.finance.yahoo.com",
		Priority: 5,
		Timeout:  30 * time.Second,
	}
}

// Adapter implements providers.Adapter over the Yahoo Finance chart API.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ providers.Adapter = (*Adapter)(nil)

// New creates a yfinance adapter.
func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("adapter", "yfinance")),
	}
}

func (a *Adapter) Name() string  { return "yfinance" }
func (a *Adapter) Priority() int { return a.cfg.Priority }

func (a *Adapter) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v8/finance/chart/SPY", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	return err == nil && resp != nil && resp.StatusCode < 500
}

// QuotesRealtime is not a bulk operation for this upstream; it is
// unsupported here and returns an empty snapshot so the orchestrator
// falls through to the next adapter.
func (a *Adapter) QuotesRealtime(ctx context.Context) (map[string]providers.Quote, error) {
	return map[string]providers.Quote{}, nil
}

// Kline returns OHLCV bars from the Yahoo Finance chart endpoint.
func (a *Adapter) Kline(ctx context.Context, req providers.KlineRequest) ([]providers.Bar, error) {
	interval, rng := chartParams(req.Period)
	if interval == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		a.cfg.BaseURL, url.QueryEscape(req.Code), interval, rng)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("yfinance: build request: %w", err)
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.logger.Warn("transport error", zap.Error(err))
		return nil, fmt.Errorf("yfinance: transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil // unsupported (code, period): no data, never error
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("yfinance: upstream status %d", resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("yfinance: decode response: %w", err)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, nil
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	q := result.Indicators.Quote[0]

	bars := make([]providers.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		bar := providers.Bar{TradeDate: time.Unix(ts, 0).UTC()}
		if i < len(q.Open) {
			bar.Open = q.Open[i]
		}
		if i < len(q.High) {
			bar.High = q.High[i]
		}
		if i < len(q.Low) {
			bar.Low = q.Low[i]
		}
		if i < len(q.Close) {
			bar.Close = q.Close[i]
		}
		if i < len(q.Volume) {
			bar.Volume = q.Volume[i]
		}
		bars = append(bars, bar)
	}

	if req.Limit > 0 && len(bars) > req.Limit {
		bars = bars[len(bars)-req.Limit:]
	}
	return bars, nil
}

// DailyBasic is unsupported by this upstream; always "no data".
func (a *Adapter) DailyBasic(ctx context.Context, tradeDate time.Time) ([]providers.DailyBasicRow, error) {
	return nil, nil
}

// News is unsupported by this adapter; always "no data".
func (a *Adapter) News(ctx context.Context, req providers.NewsRequest) ([]providers.NewsItem, error) {
	return nil, nil
}

// Query is unsupported for this upstream beyond Kline; always "no data".
func (a *Adapter) Query(ctx context.Context, apiName string, kwargs map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func chartParams(p providers.Period) (interval, rng string) {
	switch p {
	case providers.PeriodDay:
		return "1d", "1y"
	case providers.PeriodWeek:
		return "1wk", "5y"
	case providers.PeriodMonth:
		return "1mo", "10y"
	case providers.PeriodMin1:
		return "1m", "5d"
	case providers.PeriodMin5:
		return "5m", "1mo"
	case providers.PeriodMin15:
		return "15m", "1mo"
	case providers.PeriodMin30:
		return "30m", "1mo"
	case providers.PeriodMin60:
		return "60m", "3mo"
	default:
		return "", ""
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}
