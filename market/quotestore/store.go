// Package quotestore provides the write-through document store for Quote
// rows (collection "stock_daily_quotes"). Identity is the
// (symbol, trade_date, provider, period) four-tuple; an upsert is the only
// permitted mutation, never a delete.
package quotestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
)

// ErrStoreClosed is returned once Close has been called.
var ErrStoreClosed = errors.New("quotestore: store is closed")

// Key identifies one Quote row.
type Key struct {
	Symbol    string
	TradeDate time.Time
	Provider  string
	Period    providers.Period
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Symbol, k.TradeDate.Format("2006-01-02"), k.Provider, k.Period)
}

// Store is the write-through quote store interface. Implementations must
// be safe for concurrent use: concurrent writers for the same key are safe,
// last-writer-wins with an identical payload in practice.
type Store interface {
	// Upsert inserts or overwrites the row identified by the quote's key
	// tuple, setting UpdatedAt to now.
	Upsert(ctx context.Context, q providers.Quote) error

	// UpsertBatch upserts many rows; it is not required to be atomic
	// across rows, only per-row idempotent.
	UpsertBatch(ctx context.Context, qs []providers.Quote) error

	// Get retrieves the row for an exact key, or (nil, nil) if absent.
	Get(ctx context.Context, key Key) (*providers.Quote, error)

	// ListBySymbol retrieves rows for a symbol within [from, to], ordered
	// by trade_date ascending.
	ListBySymbol(ctx context.Context, symbol string, period providers.Period, from, to time.Time) ([]providers.Quote, error)

	Close() error
}

func keyOf(q providers.Quote) Key {
	return Key{Symbol: q.Symbol, TradeDate: q.TradeDate, Provider: q.Provider, Period: q.Period}
}
