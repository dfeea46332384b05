package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/calebhwang/predictd/internal/engine"
	"github.com/calebhwang/predictd/internal/queue"
	"github.com/calebhwang/predictd/internal/server/handler"
	"github.com/calebhwang/predictd/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(memory.New(), memory.NewBus(), log)

	handlers := Handlers{
		Health:  handler.NewHealthHandler(),
		Markets: handler.NewMarketHandler(eng, log),
		Trading: handler.NewTradingHandler(eng, nil, log),
		Users:   handler.NewUserHandler(eng, nil, log),
		Admin:   handler.NewAdminHandler(eng, log),
	}
	return NewServer(Config{Port: 0, AdminAPIKey: "test-key"}, handlers, nil, log), eng
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

var adminHeaders = map[string]string{"X-API-Key": "test-key"}

func createActiveMarket(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/markets", map[string]any{
		"ticker":    "BTC-100K",
		"question":  "Will bitcoin close above 100k?",
		"expiry_at": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var market struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &market)

	rec = doJSON(t, h, http.MethodPost, "/api/admin/markets/"+market.ID+"/liquidity", map[string]any{
		"amount_yes": "0",
		"amount_no":  "0",
	}, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return market.ID
}

func createFundedUser(t *testing.T, h http.Handler, wallet string, amount string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/users", map[string]any{"wallet_address": wallet}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &user)

	rec = doJSON(t, h, http.MethodPost, "/api/users/"+user.ID+"/deposit", map[string]any{"amount": amount}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return user.ID
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
	}
	decodeInto(t, rec, &body)
	require.Equal(t, "ok", body.Status)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/admin/stats", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/admin/stats", nil, map[string]string{"X-API-Key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/admin/stats", nil, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuyThroughAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	marketID := createActiveMarket(t, h)
	userID := createFundedUser(t, h, "0xAbC0000000000000000000000000000000000001", "500")

	rec := doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID,
		"side":    "YES",
		"amount":  "50",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt struct {
		Shares     decimal.Decimal `json:"shares"`
		Price      decimal.Decimal `json:"price"`
		NewBalance decimal.Decimal `json:"new_balance"`
	}
	decodeInto(t, rec, &receipt)
	require.True(t, receipt.NewBalance.Equal(decimal.NewFromInt(450)), receipt.NewBalance.String())
	require.True(t, receipt.Shares.Sub(decimal.RequireFromString("82.6104")).Abs().LessThan(decimal.RequireFromString("0.001")))

	// the market's quoted price moved up for YES
	rec = doJSON(t, h, http.MethodGet, "/api/markets/"+marketID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var market struct {
		PriceYes decimal.Decimal `json:"price_yes"`
		PriceNo  decimal.Decimal `json:"price_no"`
	}
	decodeInto(t, rec, &market)
	require.True(t, market.PriceYes.GreaterThan(decimal.RequireFromString("0.5")))
	require.True(t, market.PriceYes.Add(market.PriceNo).Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.RequireFromString("0.0001")))
}

func TestBuyValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	marketID := createActiveMarket(t, h)
	userID := createFundedUser(t, h, "0xAbC0000000000000000000000000000000000002", "10")

	rec := doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID, "side": "MAYBE", "amount": "5",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID, "side": "YES", "amount": "-5",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// more than the deposited balance
	rec = doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID, "side": "YES", "amount": "50",
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/markets/unknown/buy", map[string]any{
		"user_id": userID, "side": "YES", "amount": "5",
	}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSellThroughAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	marketID := createActiveMarket(t, h)
	userID := createFundedUser(t, h, "0xAbC0000000000000000000000000000000000003", "500")

	rec := doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID, "side": "YES", "amount": "50",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/sell", map[string]any{
		"user_id": userID, "side": "YES", "amount": "40",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt struct {
		Payout decimal.Decimal `json:"payout"`
	}
	decodeInto(t, rec, &receipt)
	require.True(t, receipt.Payout.Sub(decimal.RequireFromString("23.968")).Abs().LessThan(decimal.RequireFromString("0.001")), receipt.Payout.String())

	// selling more shares than held
	rec = doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/sell", map[string]any{
		"user_id": userID, "side": "YES", "amount": "1000000",
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMarketLifecycleThroughAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	marketID := createActiveMarket(t, h)
	userID := createFundedUser(t, h, "0xAbC0000000000000000000000000000000000004", "500")

	rec := doJSON(t, h, http.MethodPost, "/api/admin/markets/"+marketID+"/pause", nil, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID, "side": "YES", "amount": "10",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/admin/markets/"+marketID+"/resume", nil, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID, "side": "YES", "amount": "10",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/admin/markets/"+marketID+"/resolve", map[string]any{"outcome": "YES"}, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var market struct {
		Status string `json:"status"`
	}
	decodeInto(t, rec, &market)
	require.Equal(t, "settled", market.Status)

	// settled markets reject further lifecycle changes
	rec = doJSON(t, h, http.MethodPost, "/api/admin/markets/"+marketID+"/pause", nil, adminHeaders)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateMarketIdempotentThroughAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	body := map[string]any{
		"ticker":    "SOL-200",
		"question":  "Will solana close above 200?",
		"expiry_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}
	rec := doJSON(t, h, http.MethodPost, "/api/markets", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var first struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &first)

	rec = doJSON(t, h, http.MethodPost, "/api/markets", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var second struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &second)
	require.Equal(t, first.ID, second.ID)
}

func TestUserEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	marketID := createActiveMarket(t, h)
	userID := createFundedUser(t, h, "0xAbC0000000000000000000000000000000000005", "200")

	rec := doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID, "side": "NO", "amount": "20",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/users/"+userID+"/positions", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var positions []struct {
		MarketID  string          `json:"market_id"`
		NoShares  decimal.Decimal `json:"no_shares"`
		YesShares decimal.Decimal `json:"yes_shares"`
	}
	decodeInto(t, rec, &positions)
	require.Len(t, positions, 1)
	require.Equal(t, marketID, positions[0].MarketID)
	require.True(t, positions[0].NoShares.IsPositive())
	require.True(t, positions[0].YesShares.IsZero())

	rec = doJSON(t, h, http.MethodGet, "/api/users/"+userID+"/ledger", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []struct {
		Kind   string          `json:"kind"`
		Amount decimal.Decimal `json:"amount"`
	}
	decodeInto(t, rec, &entries)
	require.Len(t, entries, 3) // deposit, trade debit, fee

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/users/"+userID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user struct {
		Balance decimal.Decimal `json:"available_balance"`
	}
	decodeInto(t, rec, &user)
	require.True(t, sum.Equal(user.Balance), fmt.Sprintf("ledger sum %s, balance %s", sum, user.Balance))
}

func TestCreateOrLoginReturnsSameUser(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/users", map[string]any{"wallet_address": "0xDEADBEEF00000000000000000000000000000001"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var first struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &first)

	// same wallet in a different case resolves to the same account
	rec = doJSON(t, h, http.MethodPost, "/api/users", map[string]any{"wallet_address": "0xdeadbeef00000000000000000000000000000001"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &second)
	require.Equal(t, first.ID, second.ID)
}

func TestAsyncTradeModeQueues(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := memory.NewBus()
	eng := engine.New(memory.New(), bus, log)

	handlers := Handlers{
		Health:  handler.NewHealthHandler(),
		Markets: handler.NewMarketHandler(eng, log),
		Trading: handler.NewTradingHandler(eng, queue.NewStreamQueue(bus), log),
		Users:   handler.NewUserHandler(eng, nil, log),
		Admin:   handler.NewAdminHandler(eng, log),
	}
	srv := NewServer(Config{Port: 0}, handlers, nil, log)
	h := srv.Handler()

	marketID := createActiveMarket(t, h)
	userID := createFundedUser(t, h, "0xAbC0000000000000000000000000000000000007", "100")

	rec := doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy?mode=async", map[string]any{
		"user_id": userID, "side": "YES", "amount": "10",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var ack struct {
		RequestID string `json:"request_id"`
		Status    string `json:"status"`
	}
	decodeInto(t, rec, &ack)
	require.NotEmpty(t, ack.RequestID)
	require.Equal(t, "queued", ack.Status)

	// without the mode flag the same request executes immediately
	rec = doJSON(t, h, http.MethodPost, "/api/markets/"+marketID+"/buy", map[string]any{
		"user_id": userID, "side": "YES", "amount": "10",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestWithdrawalsDisabledWithoutSigner(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	userID := createFundedUser(t, h, "0xAbC0000000000000000000000000000000000006", "100")
	rec := doJSON(t, h, http.MethodPost, "/api/users/"+userID+"/withdrawals", map[string]any{
		"amount": "10", "nonce": 1,
	}, nil)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}
