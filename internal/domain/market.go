package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market. Transitions are
// applied only by the lifecycle state machine; Settled is absorbing.
type MarketStatus string

const (
	MarketStatusPending MarketStatus = "pending"
	MarketStatusActive  MarketStatus = "active"
	MarketStatusPaused  MarketStatus = "paused"
	MarketStatusSettled MarketStatus = "settled"
)

// Side is a binary outcome side.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid reports whether s is one of the two outcome sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Market is the read model for one binary prediction market. PoolYes and
// PoolNo are the CPMM weight pools; they are mutated only while the market
// is active, and only under the market's serialization lock.
type Market struct {
	ID                 string
	Ticker             string
	Question           string
	ResolutionCriteria string
	CollateralType     string
	ExpiryAt           time.Time
	Status             MarketStatus
	PoolYes            decimal.Decimal
	PoolNo             decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Pool returns the pool balance backing the given side.
func (m Market) Pool(side Side) decimal.Decimal {
	if side == SideYes {
		return m.PoolYes
	}
	return m.PoolNo
}

// Tradable reports whether buy/sell operations are legal right now.
func (m Market) Tradable() bool {
	return m.Status == MarketStatusActive
}

// MarketDefinition carries the creation parameters for a new market.
type MarketDefinition struct {
	Ticker             string
	Question           string
	ResolutionCriteria string
	CollateralType     string
	ExpiryAt           time.Time
}
