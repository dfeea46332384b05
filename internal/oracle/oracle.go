// Package oracle provides spot prices for the resolution agent. The primary
// source is CoinGecko; a deterministic-range mock stands in when the
// upstream is unreachable.
package oracle

import (
	"context"

	"github.com/shopspring/decimal"
)

// Oracle answers spot price queries for an asset id such as "bitcoin".
type Oracle interface {
	Price(ctx context.Context, assetID string) (decimal.Decimal, error)
}
