package orchestrator

import (
	"context"
	"testing"

	"github.com/BaSui01/tradeflow/market/providers"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestAdapterAvailable(t *testing.T) {
	up := &fakeAdapter{name: "akshare", priority: 10, available: true}
	down := &fakeAdapter{name: "tushare", priority: 8, available: false}
	o := NewOrchestrator(context.Background(), "", []providers.Adapter{up, down}, nil, nil, zap.NewNop())

	assert.True(t, o.AdapterAvailable(context.Background(), "akshare"))
	assert.False(t, o.AdapterAvailable(context.Background(), "tushare"))
	assert.False(t, o.AdapterAvailable(context.Background(), "unknown"))
}

func TestAdapterAvailable_MemoizesWithinTTL(t *testing.T) {
	a := &fakeAdapter{name: "akshare", priority: 10, available: true}
	o := NewOrchestrator(context.Background(), "", []providers.Adapter{a}, nil, nil, zap.NewNop())

	assert.True(t, o.AdapterAvailable(context.Background(), "akshare"))
	a.available = false
	assert.True(t, o.AdapterAvailable(context.Background(), "akshare"),
		"answer is served from cache inside the TTL window")
}
