package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
	"github.com/calebhwang/predictd/internal/engine"
)

// AdminHandler serves market lifecycle management and platform stats.
type AdminHandler struct {
	engine *engine.Engine
	log    *slog.Logger
}

func NewAdminHandler(e *engine.Engine, log *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: e, log: log.With(slog.String("handler", "admin"))}
}

func (h *AdminHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker             string    `json:"ticker"`
		Question           string    `json:"question"`
		ResolutionCriteria string    `json:"resolution_criteria"`
		CollateralType     string    `json:"collateral_type"`
		ExpiryAt           time.Time `json:"expiry_at"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	market, err := h.engine.CreateMarket(r.Context(), domain.MarketDefinition{
		Ticker:             req.Ticker,
		Question:           req.Question,
		ResolutionCriteria: req.ResolutionCriteria,
		CollateralType:     req.CollateralType,
		ExpiryAt:           req.ExpiryAt,
	})
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMarketResponse(market))
}

func (h *AdminHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AmountYes decimal.Decimal `json:"amount_yes"`
		AmountNo  decimal.Decimal `json:"amount_no"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	market, err := h.engine.AddLiquidity(r.Context(), r.PathValue("id"), req.AmountYes, req.AmountNo)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

func (h *AdminHandler) PauseMarket(w http.ResponseWriter, r *http.Request) {
	market, err := h.engine.Pause(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

func (h *AdminHandler) ResumeMarket(w http.ResponseWriter, r *http.Request) {
	market, err := h.engine.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

func (h *AdminHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	outcome := domain.Side(req.Outcome)
	if !outcome.Valid() {
		writeError(w, http.StatusBadRequest, "outcome must be YES or NO")
		return
	}
	if err := h.engine.Resolve(r.Context(), r.PathValue("id"), outcome); err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	market, err := h.engine.Market(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.PlatformStats(r.Context())
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
