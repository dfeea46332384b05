package oracle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/calebhwang/predictd/internal/domain"
)

func TestCoinGeckoParsesQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		require.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":104250.5}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL)
	price, err := cg.Price(context.Background(), "bitcoin")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("104250.5")))
}

func TestCoinGeckoUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cg := NewCoinGecko(srv.URL)
	_, err := cg.Price(context.Background(), "bitcoin")
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer empty.Close()

	cg = NewCoinGecko(empty.URL)
	_, err = cg.Price(context.Background(), "bitcoin")
	require.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestMockStaysInBand(t *testing.T) {
	var m Mock
	for i := 0; i < 50; i++ {
		price, err := m.Price(context.Background(), "bitcoin")
		require.NoError(t, err)
		require.True(t, price.GreaterThanOrEqual(decimal.NewFromInt(95000)))
		require.True(t, price.LessThanOrEqual(decimal.NewFromInt(105000)))
	}
	price, err := m.Price(context.Background(), "unknown-asset")
	require.NoError(t, err)
	require.True(t, price.GreaterThanOrEqual(decimal.NewFromInt(50)))
}

func TestFallbackCoversPrimaryOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := NewWithFallback(NewCoinGecko(srv.URL), log)
	price, err := o.Price(context.Background(), "ethereum")
	require.NoError(t, err)
	require.True(t, price.IsPositive())
}
