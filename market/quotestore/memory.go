package quotestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
)

// MemoryStore is an in-memory Store, used for development, testing, and as
// the memory layer read before the durable store.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[Key]providers.Quote
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory quote store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[Key]providers.Quote)}
}

func (s *MemoryStore) Upsert(ctx context.Context, q providers.Quote) error {
	return s.UpsertBatch(ctx, []providers.Quote{q})
}

func (s *MemoryStore) UpsertBatch(ctx context.Context, qs []providers.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	now := time.Now()
	for _, q := range qs {
		q.UpdatedAt = now
		s.rows[keyOf(q)] = q
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key Key) (*providers.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	q, ok := s.rows[key]
	if !ok {
		return nil, nil
	}
	cp := q
	return &cp, nil
}

func (s *MemoryStore) ListBySymbol(ctx context.Context, symbol string, period providers.Period, from, to time.Time) ([]providers.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []providers.Quote
	for k, q := range s.rows {
		if k.Symbol != symbol || k.Period != period {
			continue
		}
		if k.TradeDate.Before(from) || k.TradeDate.After(to) {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
