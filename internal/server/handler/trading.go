package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
	"github.com/calebhwang/predictd/internal/engine"
)

// TradingHandler serves buy and sell requests. Requests with mode=async are
// enqueued and acknowledged with 202 when a queue is configured; everything
// else executes synchronously. Both paths end in the same engine methods.
type TradingHandler struct {
	engine *engine.Engine
	queue  domain.TradeQueue // nil in synchronous mode
	log    *slog.Logger
}

func NewTradingHandler(e *engine.Engine, queue domain.TradeQueue, log *slog.Logger) *TradingHandler {
	return &TradingHandler{engine: e, queue: queue, log: log.With(slog.String("handler", "trading"))}
}

type tradeRequest struct {
	UserID string          `json:"user_id"`
	Side   string          `json:"side"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *TradingHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, domain.TradeActionBuy)
}

func (h *TradingHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, domain.TradeActionSell)
}

func (h *TradingHandler) trade(w http.ResponseWriter, r *http.Request, action domain.TradeAction) {
	marketID := r.PathValue("id")

	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	side := domain.Side(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be YES or NO")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if h.queue != nil && r.URL.Query().Get("mode") == "async" {
		id, err := h.queue.Enqueue(r.Context(), domain.TradeRequest{
			UserID:   req.UserID,
			MarketID: marketID,
			Side:     side,
			Action:   action,
			Amount:   req.Amount,
		})
		if err != nil {
			writeDomainError(w, h.log, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"request_id": id,
			"status":     "queued",
		})
		return
	}

	switch action {
	case domain.TradeActionBuy:
		receipt, err := h.engine.Buy(r.Context(), req.UserID, marketID, side, req.Amount)
		if err != nil {
			writeDomainError(w, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, receipt)
	default:
		receipt, err := h.engine.Sell(r.Context(), req.UserID, marketID, side, req.Amount)
		if err != nil {
			writeDomainError(w, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, receipt)
	}
}
