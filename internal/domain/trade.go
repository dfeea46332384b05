package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one executed order. Append-only, one row
// per fill.
type Trade struct {
	ID             string          `json:"id"`
	MarketID       string          `json:"market_id"`
	UserID         string          `json:"user_id"`
	Side           Side            `json:"side"`
	Amount         decimal.Decimal `json:"amount"` // collateral in (buy) or payout out (sell)
	SharesReceived decimal.Decimal `json:"shares_received"`
	Price          decimal.Decimal `json:"price"` // execution price
	CreatedAt      time.Time       `json:"created_at"`
}

// TradeReceipt is returned to the caller after a buy executes.
type TradeReceipt struct {
	TradeID    string          `json:"trade_id"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// SellReceipt is returned to the caller after a sell executes.
type SellReceipt struct {
	Payout     decimal.Decimal `json:"payout"`
	Price      decimal.Decimal `json:"price"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// PricePoint is one sample in a market's execution-price history.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
	Side  string          `json:"side"`
}
