// Package orchestrator implements the priority fanout/fallback layer over
// market/providers adapters: try adapters in
// descending priority order, return the first non-empty result, and
// write-through any OHLCV/quote result into the quote store before
// returning it to the caller.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
	"github.com/BaSui01/tradeflow/market/quotestore"
	"go.uber.org/zap"
)

// PriorityStore resolves per-market priority overrides from the durable
// config/document store (collection keyed by market x provider). A nil
// PriorityStore means no overrides: adapters keep their built-in priority.
type PriorityStore interface {
	// PriorityOverride returns the overridden priority for (market, provider)
	// and whether an override row exists.
	PriorityOverride(ctx context.Context, market, provider string) (int, bool)
}

// Result is the outcome of a fanout call: the payload, which adapter
// produced it, or (nil, "") if every adapter was exhausted.
type Result[T any] struct {
	Value  T
	Origin string
}

// Orchestrator fans a market-data request out over a frozen, priority-sorted
// set of adapters. Adapter priorities are resolved once at construction and
// held immutable afterwards; Reload builds a fresh
// Orchestrator and callers swap the pointer rather than mutate in place.
type Orchestrator struct {
	adapters []providers.Adapter // sorted descending by effective priority
	store    quotestore.Store
	logger   *zap.Logger

	checker        ConsistencyChecker
	checkerEnabled bool

	mu         sync.RWMutex // guards availability cache only, never priorities
	availCache map[string]availabilityEntry
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithConsistencyChecker installs a ConsistencyChecker. It stays inert
// (telemetry-only, never user-visible) unless WithConsistencyCheckEnabled
// is also supplied.
func WithConsistencyChecker(c ConsistencyChecker) Option {
	return func(o *Orchestrator) { o.checker = c }
}

// WithConsistencyCheckEnabled opts the caller into running the consistency
// check path. It remains telemetry-only: it never changes the returned
// result, only logs / (optionally) increments a metric.
func WithConsistencyCheckEnabled(enabled bool) Option {
	return func(o *Orchestrator) { o.checkerEnabled = enabled }
}

// NewOrchestrator resolves effective priorities for each adapter — DB
// override, then DEFAULT_CHINA_DATA_SOURCE-style env override, then the
// adapter's own built-in default — sorts descending, and freezes the
// result. market is used only to key the PriorityStore lookup (e.g. "CN",
// "US", "HK"); pass "" when overrides are not market-specific.
func NewOrchestrator(ctx context.Context, market string, adapterList []providers.Adapter, priorities PriorityStore, store quotestore.Store, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	type ranked struct {
		adapter  providers.Adapter
		priority int
	}
	rs := make([]ranked, 0, len(adapterList))
	for _, a := range adapterList {
		p := a.Priority()
		if priorities != nil {
			if override, ok := priorities.PriorityOverride(ctx, market, a.Name()); ok {
				p = override
			} else if env := os.Getenv(envPriorityKey(market, a.Name())); env != "" {
				if v, err := parsePriorityEnv(env); err == nil {
					p = v
				}
			}
		}
		rs = append(rs, ranked{adapter: a, priority: p})
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].priority > rs[j].priority })

	sorted := make([]providers.Adapter, len(rs))
	for i, r := range rs {
		sorted[i] = r.adapter
	}

	o := &Orchestrator{
		adapters: sorted,
		store:    store,
		logger:   logger.With(zap.String("component", "orchestrator"), zap.String("market", market)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Reload builds a replacement Orchestrator with freshly resolved
// priorities. Callers own the pointer swap (e.g. via atomic.Pointer); this
// never mutates an existing Orchestrator's adapter order.
func (o *Orchestrator) Reload(ctx context.Context, market string, adapterList []providers.Adapter, priorities PriorityStore) *Orchestrator {
	return NewOrchestrator(ctx, market, adapterList, priorities, o.store, o.logger, func(n *Orchestrator) {
		n.checker = o.checker
		n.checkerEnabled = o.checkerEnabled
	})
}

func envPriorityKey(market, provider string) string {
	if market == "" {
		return fmt.Sprintf("TRADEFLOW_PRIORITY_%s", provider)
	}
	return fmt.Sprintf("TRADEFLOW_PRIORITY_%s_%s", market, provider)
}

func parsePriorityEnv(v string) (int, error) {
	var n int
	_, err := fmt.Sscanf(v, "%d", &n)
	return n, err
}

// Kline tries each adapter in priority order, returning the first adapter's
// non-empty bar set and write-through upserting it into the quote store.
// An exhausted fallback returns a zero Result with Origin == "", never an
// error; a single adapter's own error is logged and treated as empty.
func (o *Orchestrator) Kline(ctx context.Context, req providers.KlineRequest) (Result[[]providers.Bar], error) {
	var candidates []adapterAttempt
	for _, a := range o.adapters {
		if !a.Available(ctx) {
			continue
		}
		bars, err := a.Kline(ctx, req)
		if err != nil {
			o.logger.Warn("adapter kline error, treating as empty", zap.String("adapter", a.Name()), zap.Error(err))
			continue
		}
		if len(bars) == 0 {
			continue
		}
		candidates = append(candidates, adapterAttempt{name: a.Name(), bars: bars})
		if len(candidates) >= 2 {
			break // only the top two are needed for the optional consistency check
		}
	}

	if len(candidates) == 0 {
		return Result[[]providers.Bar]{}, nil
	}

	primary := candidates[0]
	if o.checkerEnabled && o.checker != nil && len(candidates) >= 2 {
		o.runConsistencyCheck(ctx, req.Code, primary, candidates[1])
	}

	if o.store != nil {
		quotes := make([]providers.Quote, 0, len(primary.bars))
		for _, bar := range primary.bars {
			quotes = append(quotes, providers.Quote{
				Symbol: providers.NormalizeCode(req.Code), TradeDate: bar.TradeDate,
				Provider: primary.name, Period: req.Period,
				Open: ptr(bar.Open), High: ptr(bar.High), Low: ptr(bar.Low), Close: ptr(bar.Close),
				Volume: ptr(bar.Volume), Amount: bar.Amount, UpdatedAt: time.Now(),
			})
		}
		if err := o.store.UpsertBatch(ctx, quotes); err != nil {
			o.logger.Warn("quote store write-through failed", zap.Error(err))
		}
	}

	return Result[[]providers.Bar]{Value: primary.bars, Origin: primary.name}, nil
}

// QuotesRealtime tries each adapter in priority order and returns the
// first non-empty whole-market snapshot. Realtime snapshots are not
// written through: the quote store keys rows by trade date, and an
// intraday snapshot carries no settled trade_date yet.
func (o *Orchestrator) QuotesRealtime(ctx context.Context) (Result[map[string]providers.Quote], error) {
	for _, a := range o.adapters {
		if !a.Available(ctx) {
			continue
		}
		quotes, err := a.QuotesRealtime(ctx)
		if err != nil {
			o.logger.Warn("adapter quotes_realtime error, treating as empty", zap.String("adapter", a.Name()), zap.Error(err))
			continue
		}
		if len(quotes) == 0 {
			continue
		}
		return Result[map[string]providers.Quote]{Value: quotes, Origin: a.Name()}, nil
	}
	return Result[map[string]providers.Quote]{}, nil
}

// DailyBasic tries each adapter in priority order and returns the first
// non-empty row set, with write-through upsert of the fundamentals fields
// into the quote store's daily-period rows for the requested trade date.
func (o *Orchestrator) DailyBasic(ctx context.Context, tradeDate time.Time) (Result[[]providers.DailyBasicRow], error) {
	for _, a := range o.adapters {
		if !a.Available(ctx) {
			continue
		}
		rows, err := a.DailyBasic(ctx, tradeDate)
		if err != nil {
			o.logger.Warn("adapter daily_basic error, treating as empty", zap.String("adapter", a.Name()), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			continue
		}

		if o.store != nil {
			quotes := make([]providers.Quote, 0, len(rows))
			for _, row := range rows {
				quotes = append(quotes, providers.Quote{
					Symbol: row.Symbol, TradeDate: row.TradeDate, Provider: a.Name(), Period: providers.PeriodDay,
					PE: row.PE, PB: row.PB, TurnoverRate: row.TurnoverRate, TotalMV: row.TotalMV,
					UpdatedAt: time.Now(),
				})
			}
			if err := o.store.UpsertBatch(ctx, quotes); err != nil {
				o.logger.Warn("quote store write-through failed", zap.Error(err))
			}
		}

		return Result[[]providers.DailyBasicRow]{Value: rows, Origin: a.Name()}, nil
	}
	return Result[[]providers.DailyBasicRow]{}, nil
}

// News tries each adapter in priority order and returns the first non-empty
// article set. News is not written through to the quote store.
func (o *Orchestrator) News(ctx context.Context, req providers.NewsRequest) (Result[[]providers.NewsItem], error) {
	for _, a := range o.adapters {
		if !a.Available(ctx) {
			continue
		}
		items, err := a.News(ctx, req)
		if err != nil {
			o.logger.Warn("adapter news error, treating as empty", zap.String("adapter", a.Name()), zap.Error(err))
			continue
		}
		if len(items) == 0 {
			continue
		}
		return Result[[]providers.NewsItem]{Value: items, Origin: a.Name()}, nil
	}
	return Result[[]providers.NewsItem]{}, nil
}

// QueryWithFallback exposes the generic escape hatch described in spec
// §4.2: forward apiName/kwargs to each adapter in priority order, returning
// the first non-empty row set.
func (o *Orchestrator) QueryWithFallback(ctx context.Context, apiName string, kwargs map[string]any) (Result[[]map[string]any], error) {
	for _, a := range o.adapters {
		if !a.Available(ctx) {
			continue
		}
		rows, err := a.Query(ctx, apiName, kwargs)
		if err != nil {
			o.logger.Warn("adapter query error, treating as empty", zap.String("adapter", a.Name()), zap.String("api", apiName), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			continue
		}
		return Result[[]map[string]any]{Value: rows, Origin: a.Name()}, nil
	}
	return Result[[]map[string]any]{}, nil
}

type adapterAttempt struct {
	name string
	bars []providers.Bar
}

func (o *Orchestrator) runConsistencyCheck(ctx context.Context, code string, primary, secondary adapterAttempt) {
	verdict, err := o.checker.Check(ctx, code, primary.bars, secondary.bars)
	if err != nil {
		o.logger.Warn("consistency check failed", zap.Error(err))
		return
	}
	o.logger.Info("consistency check",
		zap.String("code", code),
		zap.String("primary", primary.name), zap.String("secondary", secondary.name),
		zap.Bool("is_consistent", verdict.IsConsistent),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("recommended_action", verdict.RecommendedAction),
	)
}

func ptr(f float64) *float64 { return &f }
