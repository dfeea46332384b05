package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User holds the single authoritative spendable balance for one account.
// The ledger is its audit trail: at any point in time the sum of a user's
// ledger entries equals the net change of AvailableBalance since creation.
type User struct {
	ID               string          `json:"id"`
	WalletAddress    string          `json:"wallet_address"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
