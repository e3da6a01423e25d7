// Package akshare implements the providers.Adapter contract over the
// AKShare-style mainland-China data source. It is the full-capability
// adapter: quotes, kline, daily fundamentals, news, and the generic query
// escape hatch, with column-alias normalization from Chinese upstream
// field names to the canonical English alias set.
package akshare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
	"go.uber.org/zap"
)

// columnAliases maps upstream Chinese column names to the canonical
// English alias used throughout this codebase.
var columnAliases = map[string]string{
	"代码":    "code",
	"名称":    "name",
	"最新价":   "close",
	"今开":    "open",
	"最高":    "high",
	"最低":    "low",
	"成交量":   "volume",
	"成交额":   "amount",
	"市盈率-动态": "pe",
	"市净率":   "pb",
	"换手率":   "turnover_rate",
	"总市值":   "total_mv",
	"日期":    "trade_date",
}

// Config configures the akshare adapter.
type Config struct {
	BaseURL  string
	Priority int
	Timeout  time.Duration
}

// DefaultConfig returns sane defaults; priority 10 makes akshare the
// preferred mainland source when no override is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8800/api/public",
		Priority: 10,
		Timeout:  30 * time.Second,
	}
}

// Adapter implements providers.Adapter over an AKShare HTTP gateway.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	available bool
	checkedAt time.Time
}

var _ providers.Adapter = (*Adapter)(nil)

// New creates an akshare adapter.
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
		logger: logger.With(zap.String("adapter", "akshare")),
	}
}

func (a *Adapter) Name() string   { return "akshare" }
func (a *Adapter) Priority() int  { return a.cfg.Priority }

// Available performs a cheap liveness check, memoized for 30s.
func (a *Adapter) Available(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if time.Since(a.checkedAt) < 30*time.Second {
		return a.available
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/ping", nil)
	if err != nil {
		a.available = false
		a.checkedAt = time.Now()
		return false
	}
	resp, err := a.client.Do(req)
	a.available = err == nil && resp != nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}
	a.checkedAt = time.Now()
	return a.available
}

// QuotesRealtime returns a whole-market snapshot keyed by normalized code.
func (a *Adapter) QuotesRealtime(ctx context.Context) (map[string]providers.Quote, error) {
	rows, err := a.get(ctx, "stock_zh_a_spot", nil)
	if err != nil {
		return nil, err
	}

	result := make(map[string]providers.Quote, len(rows))
	now := time.Now()
	for _, row := range rows {
		aliased := alias(row)
		code := providers.NormalizeCode(providers.CoerceString(aliased["code"]))
		if code == "" {
			continue // skip malformed rows without aborting the batch
		}
		result[code] = providers.Quote{
			Symbol:    code,
			TradeDate: now,
			Provider:  a.Name(),
			Period:    providers.PeriodDay,
			Open:      providers.CoerceFloat(aliased["open"]),
			High:      providers.CoerceFloat(aliased["high"]),
			Low:       providers.CoerceFloat(aliased["low"]),
			Close:     providers.CoerceFloat(aliased["close"]),
			Volume:    providers.CoerceFloat(aliased["volume"]),
			Amount:    providers.CoerceFloat(aliased["amount"]),
			UpdatedAt: now,
		}
	}
	return result, nil
}

// Kline returns OHLCV bars for a symbol/period. Unsupported combinations
// return (nil, nil) rather than an error.
func (a *Adapter) Kline(ctx context.Context, req providers.KlineRequest) ([]providers.Bar, error) {
	if !supportedPeriod(req.Period) {
		return nil, nil
	}

	code := providers.NormalizeCode(req.Code)
	params := url.Values{
		"symbol": {code},
		"period": {string(req.Period)},
	}
	rows, err := a.get(ctx, "stock_zh_a_hist", params)
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
	for _, row := range rows[len(rows)-limit:] {
		aliased := alias(row)
		tradeDate, _ := time.Parse("2006-01-02", providers.CoerceString(aliased["trade_date"]))
		bar := providers.Bar{TradeDate: tradeDate}
		if v := providers.CoerceFloat(aliased["open"]); v != nil {
			bar.Open = *v
		}
		if v := providers.CoerceFloat(aliased["high"]); v != nil {
			bar.High = *v
		}
		if v := providers.CoerceFloat(aliased["low"]); v != nil {
			bar.Low = *v
		}
		if v := providers.CoerceFloat(aliased["close"]); v != nil {
			bar.Close = *v
		}
		if v := providers.CoerceFloat(aliased["volume"]); v != nil {
			bar.Volume = *v
		}
		bar.Amount = providers.CoerceFloat(aliased["amount"])
		bars = append(bars, bar)
	}
	return bars, nil
}

// DailyBasic returns per-symbol fundamentals for a trading day.
func (a *Adapter) DailyBasic(ctx context.Context, tradeDate time.Time) ([]providers.DailyBasicRow, error) {
	params := url.Values{"trade_date": {tradeDate.Format("20060102")}}
	rows, err := a.get(ctx, "stock_zh_a_daily_basic", params)
	if err != nil {
		return nil, err
	}

	out := make([]providers.DailyBasicRow, 0, len(rows))
	for _, row := range rows {
		aliased := alias(row)
		code := providers.NormalizeCode(providers.CoerceString(aliased["code"]))
		if code == "" {
			continue
		}
		out = append(out, providers.DailyBasicRow{
			Symbol:       code,
			TradeDate:    tradeDate,
			PE:           providers.CoerceFloat(aliased["pe"]),
			PB:           providers.CoerceFloat(aliased["pb"]),
			TurnoverRate: providers.CoerceFloat(aliased["turnover_rate"]),
			TotalMV:      providers.NormalizeMarketCapYi(providers.CoerceFloat(aliased["total_mv"]), 1e4),
		})
	}
	return out, nil
}

// News returns news/announcement items for a symbol.
func (a *Adapter) News(ctx context.Context, req providers.NewsRequest) ([]providers.NewsItem, error) {
	params := url.Values{
		"symbol": {providers.NormalizeCode(req.Code)},
		"days":   {fmt.Sprintf("%d", req.Days)},
	}
	endpoint := "stock_news_em"
	if req.IncludeAnnouncements {
		endpoint = "stock_notice_report"
	}
	rows, err := a.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	items := make([]providers.NewsItem, 0, limit)
	for _, row := range rows[:limit] {
		aliased := alias(row)
		published, _ := time.Parse("2006-01-02 15:04:05", providers.CoerceString(row["publish_time"]))
		items = append(items, providers.NewsItem{
			Title:          providers.CoerceString(row["title"]),
			Summary:        providers.CoerceString(row["content"]),
			URL:            providers.CoerceString(row["url"]),
			Source:         "akshare",
			PublishedAt:    published,
			IsAnnouncement: req.IncludeAnnouncements,
		})
		_ = aliased
	}
	return items, nil
}

// Query is the generic escape hatch; it translates apiName to an
// upstream-native call and normalizes columns to the alias set.
func (a *Adapter) Query(ctx context.Context, apiName string, kwargs map[string]any) ([]map[string]any, error) {
	params := url.Values{}
	for k, v := range kwargs {
		params.Set(k, fmt.Sprintf("%v", v))
	}
	rows, err := a.get(ctx, apiName, params)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, alias(row))
	}
	return out, nil
}

func (a *Adapter) get(ctx context.Context, endpoint string, params url.Values) ([]map[string]any, error) {
	u := a.cfg.BaseURL + "/" + endpoint
	if params != nil && len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("akshare: build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("transport error", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("akshare: transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("akshare: upstream status %d for %s", resp.StatusCode, endpoint)
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("akshare: decode response: %w", err)
	}
	return rows, nil
}

func alias(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		if canon, ok := columnAliases[k]; ok {
			out[canon] = v
			continue
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

func supportedPeriod(p providers.Period) bool {
	switch p {
	case providers.PeriodDay, providers.PeriodWeek, providers.PeriodMonth,
		providers.PeriodMin1, providers.PeriodMin5, providers.PeriodMin15,
		providers.PeriodMin30, providers.PeriodMin60:
		return true
	default:
		return false
	}
}
