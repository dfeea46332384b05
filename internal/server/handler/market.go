package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
	"github.com/calebhwang/predictd/internal/engine"
)

// MarketHandler serves the public market read endpoints.
type MarketHandler struct {
	engine *engine.Engine
	log    *slog.Logger
}

func NewMarketHandler(e *engine.Engine, log *slog.Logger) *MarketHandler {
	return &MarketHandler{engine: e, log: log.With(slog.String("handler", "market"))}
}

type marketResponse struct {
	ID                 string          `json:"id"`
	Ticker             string          `json:"ticker"`
	Question           string          `json:"question"`
	ResolutionCriteria string          `json:"resolution_criteria,omitempty"`
	CollateralType     string          `json:"collateral_type"`
	Status             string          `json:"status"`
	PriceYes           decimal.Decimal `json:"price_yes"`
	PriceNo            decimal.Decimal `json:"price_no"`
	PoolYes            decimal.Decimal `json:"pool_yes"`
	PoolNo             decimal.Decimal `json:"pool_no"`
	ExpiryAt           time.Time       `json:"expiry_at"`
	CreatedAt          time.Time       `json:"created_at"`
}

func toMarketResponse(m domain.Market) marketResponse {
	total := m.PoolYes.Add(m.PoolNo)
	resp := marketResponse{
		ID:                 m.ID,
		Ticker:             m.Ticker,
		Question:           m.Question,
		ResolutionCriteria: m.ResolutionCriteria,
		CollateralType:     m.CollateralType,
		Status:             string(m.Status),
		PoolYes:            m.PoolYes,
		PoolNo:             m.PoolNo,
		ExpiryAt:           m.ExpiryAt,
		CreatedAt:          m.CreatedAt,
	}
	if total.IsPositive() {
		resp.PriceYes = m.PoolYes.Div(total)
		resp.PriceNo = m.PoolNo.Div(total)
	}
	return resp
}

func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.engine.Markets(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.Market(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.engine.MarketTrades(r.Context(), r.PathValue("id"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *MarketHandler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	points, err := h.engine.PriceHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	// confirm the market exists so unknown ids return 404, not an empty list
	if _, err := h.engine.Market(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	events, err := h.engine.MarketEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
