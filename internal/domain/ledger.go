package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryDeposit     EntryKind = "DEPOSIT"
	EntryTradeBuy    EntryKind = "TRADE_BUY"
	EntryTradeSell   EntryKind = "TRADE_SELL"
	EntryProtocolFee EntryKind = "PROTOCOL_FEE"
	EntryWinPayout   EntryKind = "WIN_PAYOUT"
)

// LedgerEntry is one immutable signed balance movement. Positive amounts are
// credits, negative amounts are debits. For every operation that mutates a
// user's balance, the entries written alongside it sum to exactly the balance
// delta; the ledger and the balance are two views of the same fact.
type LedgerEntry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      EntryKind       `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
