package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DustThreshold is the share amount below which a position side is floored
// to zero after a sell.
var DustThreshold = decimal.RequireFromString("0.0001")

// Position tracks one user's share holdings in one market. Keyed uniquely by
// (UserID, MarketID); created lazily on first trade and never deleted.
type Position struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	MarketID  string          `json:"market_id"`
	YesShares decimal.Decimal `json:"yes_shares"`
	NoShares  decimal.Decimal `json:"no_shares"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Shares returns the holdings on the given side.
func (p Position) Shares(side Side) decimal.Decimal {
	if side == SideYes {
		return p.YesShares
	}
	return p.NoShares
}

// SetShares replaces the holdings on the given side, flooring dust to zero.
func (p *Position) SetShares(side Side, v decimal.Decimal) {
	if v.LessThan(DustThreshold) {
		v = decimal.Zero
	}
	if side == SideYes {
		p.YesShares = v
	} else {
		p.NoShares = v
	}
}
