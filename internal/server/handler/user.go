package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/chain"
	"github.com/calebhwang/predictd/internal/engine"
)

// UserHandler serves account endpoints: create-or-login by wallet, balance
// and position reads, the ledger, mock deposits, and withdrawal
// authorizations.
type UserHandler struct {
	engine *engine.Engine
	signer *chain.WithdrawalSigner // nil when the chain surface is disabled
	log    *slog.Logger
}

func NewUserHandler(e *engine.Engine, signer *chain.WithdrawalSigner, log *slog.Logger) *UserHandler {
	return &UserHandler{engine: e, signer: signer, log: log.With(slog.String("handler", "user"))}
}

func (h *UserHandler) CreateOrLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	user, err := h.engine.EnsureUser(r.Context(), req.WalletAddress)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.engine.User(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.engine.UserPositions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *UserHandler) LedgerHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.LedgerHistory(r.Context(), r.PathValue("id"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// MockDeposit credits test collateral without an on-chain transfer.
func (h *UserHandler) MockDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	balance, err := h.engine.Deposit(r.Context(), r.PathValue("id"), req.Amount, "mock")
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// SignWithdrawal issues an EIP-712 authorization the vault contract accepts.
// The balance itself is debited on-chain, so the amount is only checked
// against the current available balance.
func (h *UserHandler) SignWithdrawal(w http.ResponseWriter, r *http.Request) {
	if h.signer == nil {
		writeError(w, http.StatusNotImplemented, "withdrawals are not enabled")
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Nonce  int64           `json:"nonce"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	user, err := h.engine.User(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	if user.AvailableBalance.LessThan(req.Amount) {
		writeError(w, http.StatusUnprocessableEntity, "amount exceeds available balance")
		return
	}

	// shift to the token's 6-decimal smallest unit
	units := req.Amount.Shift(6).Truncate(0).BigInt()
	sig, err := h.signer.SignWithdrawal(user.WalletAddress, new(big.Int).Set(units), req.Nonce)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"signature": sig,
		"signer":    h.signer.Address().Hex(),
		"amount":    req.Amount,
		"nonce":     req.Nonce,
	})
}
