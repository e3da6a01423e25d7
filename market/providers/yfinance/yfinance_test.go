package yfinance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/tradeflow/market/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Priority: 5, Timeout: 5 * time.Second}, nil)
}

const chartBody = `{"chart":{"result":[{"timestamp":[1753833600,1753920000],
"indicators":{"quote":[{"open":[210.1,212.0],"high":[213.0,214.5],"low":[209.0,211.0],
"close":[212.5,213.8],"volume":[1000000,1200000]}]}}]}}`

func TestKline_ParsesChartResponse(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/AAPL")
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		fmt.Fprint(w, chartBody)
	})

	bars, err := a.Kline(context.Background(), providers.KlineRequest{Code: "AAPL", Period: providers.PeriodDay})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 212.5, bars[0].Close)
	assert.Equal(t, 1200000.0, bars[1].Volume)
	assert.True(t, bars[0].TradeDate.Before(bars[1].TradeDate))
}

func TestKline_LimitKeepsTail(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody)
	})

	bars, err := a.Kline(context.Background(), providers.KlineRequest{Code: "AAPL", Period: providers.PeriodDay, Limit: 1})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 213.8, bars[0].Close)
}

func TestKline_UnknownSymbolIsNoData(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	bars, err := a.Kline(context.Background(), providers.KlineRequest{Code: "NOPE000", Period: providers.PeriodDay})
	assert.NoError(t, err)
	assert.Nil(t, bars)
}

func TestUnsupportedOperationsAreNoDataNeverError(t *testing.T) {
	a := New(Config{}, nil)

	rows, err := a.DailyBasic(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Nil(t, rows)

	items, err := a.News(context.Background(), providers.NewsRequest{Code: "AAPL"})
	assert.NoError(t, err)
	assert.Nil(t, items)

	generic, err := a.Query(context.Background(), "anything", nil)
	assert.NoError(t, err)
	assert.Nil(t, generic)
}
