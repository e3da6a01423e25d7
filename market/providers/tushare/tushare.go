// Package tushare implements the providers.Adapter contract over the
// Tushare Pro mainland-China data source. This adapter rejects stale and
// non-trading-day results: a daily_basic request for a date the upstream
// has no row for is treated as no-data rather than silently returning the
// most recent prior row.
package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
	"go.uber.org/zap"
)

// Config configures the tushare adapter.
type Config struct {
	BaseURL  string
	Token    string
	Priority int
	Timeout  time.Duration
}

// DefaultConfig returns sane defaults; priority 8, one step below akshare,
// so it serves as the first fallback for mainland symbols.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://api.tushare.pro",
		Priority: 8,
		Timeout:  30 * time.Second,
	}
}

// Adapter implements providers.Adapter over the Tushare Pro JSON-RPC API.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ providers.Adapter = (*Adapter)(nil)

// New creates a tushare adapter.
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
		logger: logger.With(zap.String("adapter", "tushare")),
	}
}

func (a *Adapter) Name() string  { return "tushare" }
func (a *Adapter) Priority() int { return a.cfg.Priority }

// Available reports whether a token is configured; Tushare has no
// anonymous ping endpoint, so absence of credentials is treated as
// unavailable rather than issuing a billed call.
func (a *Adapter) Available(ctx context.Context) bool {
	return a.cfg.Token != ""
}

// QuotesRealtime returns a whole-market snapshot. Tushare Pro's realtime
// quote endpoint is a single bulk call, so the map is built directly.
func (a *Adapter) QuotesRealtime(ctx context.Context) (map[string]providers.Quote, error) {
	rows, err := a.call(ctx, "realtime_quote", nil, "")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := make(map[string]providers.Quote, len(rows))
	for _, row := range rows {
		code := providers.NormalizeCode(providers.CoerceString(row["ts_code"]))
		if code == "" {
			continue
		}
		result[code] = providers.Quote{
			Symbol:    code,
			TradeDate: now,
			Provider:  a.Name(),
			Period:    providers.PeriodDay,
			Open:      providers.CoerceFloat(row["open"]),
			High:      providers.CoerceFloat(row["high"]),
			Low:       providers.CoerceFloat(row["low"]),
			Close:     providers.CoerceFloat(row["price"]),
			Volume:    providers.CoerceFloat(row["volume"]),
			Amount:    providers.CoerceFloat(row["amount"]),
			UpdatedAt: now,
		}
	}
	return result, nil
}

// Kline returns OHLCV bars. Minute-level periods are not supported by this
// adapter and return (nil, nil), "no data" rather than an error.
func (a *Adapter) Kline(ctx context.Context, req providers.KlineRequest) ([]providers.Bar, error) {
	api := dailyAPIFor(req.Period)
	if api == "" {
		return nil, nil
	}

	params := map[string]any{
		"ts_code": tsCode(req.Code),
		"adj":     string(req.Adjustment),
	}
	rows, err := a.call(ctx, api, params, "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	limit := req.Limit
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	bars := make([]providers.Bar, 0, limit)
	for _, row := range rows[:limit] {
		tradeDate, _ := time.Parse("20060102", providers.CoerceString(row["trade_date"]))
		bar := providers.Bar{TradeDate: tradeDate}
		if v := providers.CoerceFloat(row["open"]); v != nil {
			bar.Open = *v
		}
		if v := providers.CoerceFloat(row["high"]); v != nil {
			bar.High = *v
		}
		if v := providers.CoerceFloat(row["low"]); v != nil {
			bar.Low = *v
		}
		if v := providers.CoerceFloat(row["close"]); v != nil {
			bar.Close = *v
		}
		if v := providers.CoerceFloat(row["vol"]); v != nil {
			bar.Volume = *v
		}
		bar.Amount = providers.CoerceFloat(row["amount"])
		bars = append(bars, bar)
	}
	return bars, nil
}

// DailyBasic returns per-symbol fundamentals for trade_date, rejecting
// stale rows: if the upstream's most recent row for a symbol predates the
// requested trade_date, that symbol is skipped rather than silently
// returning a non-trading-day's stale fundamentals.
func (a *Adapter) DailyBasic(ctx context.Context, tradeDate time.Time) ([]providers.DailyBasicRow, error) {
	params := map[string]any{"trade_date": tradeDate.Format("20060102")}
	rows, err := a.call(ctx, "daily_basic", params, "")
	if err != nil {
		return nil, err
	}

	out := make([]providers.DailyBasicRow, 0, len(rows))
	for _, row := range rows {
		rowDate, perr := time.Parse("20060102", providers.CoerceString(row["trade_date"]))
		if perr != nil || !sameDay(rowDate, tradeDate) {
			// Stale or non-trading-day row for the requested date: skip.
			continue
		}
		code := providers.NormalizeCode(providers.CoerceString(row["ts_code"]))
		if code == "" {
			continue
		}
		out = append(out, providers.DailyBasicRow{
			Symbol:       code,
			TradeDate:    tradeDate,
			PE:           providers.CoerceFloat(row["pe"]),
			PB:           providers.CoerceFloat(row["pb"]),
			TurnoverRate: providers.CoerceFloat(row["turnover_rate"]),
			TotalMV:      providers.NormalizeMarketCapYi(providers.CoerceFloat(row["total_mv"]), 1e4),
		})
	}
	return out, nil
}

// News is not offered by this adapter; it always returns "no data".
func (a *Adapter) News(ctx context.Context, req providers.NewsRequest) ([]providers.NewsItem, error) {
	return nil, nil
}

// Query is the generic escape hatch, forwarding apiName/kwargs verbatim.
func (a *Adapter) Query(ctx context.Context, apiName string, kwargs map[string]any) ([]map[string]any, error) {
	return a.call(ctx, apiName, kwargs, "")
}

func (a *Adapter) call(ctx context.Context, apiName string, params map[string]any, fields string) ([]map[string]any, error) {
	if a.cfg.Token == "" {
		return nil, fmt.Errorf("tushare: no token configured")
	}

	body, err := json.Marshal(map[string]any{
		"api_name": apiName,
		"token":    a.cfg.Token,
		"params":   params,
		"fields":   fields,
	})
	if err != nil {
		return nil, fmt.Errorf("tushare: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tushare: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("transport error", zap.String("api", apiName), zap.Error(err))
		return nil, fmt.Errorf("tushare: transport error: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Fields []string        `json:"fields"`
			Items  [][]interface{} `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tushare: decode response: %w", err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("tushare: api error: %s", parsed.Msg)
	}

	rows := make([]map[string]any, 0, len(parsed.Data.Items))
	for _, item := range parsed.Data.Items {
		row := make(map[string]any, len(parsed.Data.Fields))
		for i, f := range parsed.Data.Fields {
			if i < len(item) {
				row[f] = item[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func dailyAPIFor(p providers.Period) string {
	switch p {
	case providers.PeriodDay:
		return "daily"
	case providers.PeriodWeek:
		return "weekly"
	case providers.PeriodMonth:
		return "monthly"
	default:
		return ""
	}
}

func tsCode(code string) string {
	norm := providers.NormalizeCode(code)
	sym := providers.ParseSymbol(code)
	if sym.Exchange == "" {
		return norm
	}
	return norm + "." + sym.Exchange
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
