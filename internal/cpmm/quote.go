// Package cpmm implements weight pool pricing for binary outcome markets.
// Each market holds a collateral pool per side; the spot price of a side is
// its pool's share of the combined pool, so prices always sum to one.
package cpmm

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

// FeeRate is the protocol fee applied on entry and exit.
var FeeRate = decimal.RequireFromString("0.01")

var (
	ErrNonPositiveAmount = errors.New("cpmm: amount must be positive")
	ErrNonPositiveShares = errors.New("cpmm: shares must be positive")
	ErrEmptyPool         = errors.New("cpmm: pool has no liquidity")
)

// BuyQuote describes the effects of spending collateral on one side.
type BuyQuote struct {
	Shares  decimal.Decimal
	Price   decimal.Decimal
	Fee     decimal.Decimal
	Net     decimal.Decimal
	PoolYes decimal.Decimal
	PoolNo  decimal.Decimal
}

// SellQuote describes the effects of liquidating shares on one side.
// Payout is the gross value at the pre-trade spot price; Net is what the
// seller receives after the exit fee.
type SellQuote struct {
	Payout  decimal.Decimal
	Price   decimal.Decimal
	Fee     decimal.Decimal
	Net     decimal.Decimal
	PoolYes decimal.Decimal
	PoolNo  decimal.Decimal
}

// Spot returns the current price of side given the two pools.
func Spot(poolYes, poolNo decimal.Decimal, side domain.Side) (decimal.Decimal, error) {
	total := poolYes.Add(poolNo)
	if !total.IsPositive() {
		return decimal.Zero, ErrEmptyPool
	}
	if side == domain.SideYes {
		return poolYes.Div(total), nil
	}
	return poolNo.Div(total), nil
}

// Buy quotes spending amount of collateral on side. The net amount after fee
// is added to the side's pool first; the price charged is the post-trade spot
// price, so large orders pay for their own impact.
func Buy(poolYes, poolNo decimal.Decimal, side domain.Side, amount decimal.Decimal) (BuyQuote, error) {
	if !amount.IsPositive() {
		return BuyQuote{}, ErrNonPositiveAmount
	}
	if !poolYes.Add(poolNo).IsPositive() {
		return BuyQuote{}, ErrEmptyPool
	}

	fee := amount.Mul(FeeRate)
	net := amount.Sub(fee)

	if side == domain.SideYes {
		poolYes = poolYes.Add(net)
	} else {
		poolNo = poolNo.Add(net)
	}
	total := poolYes.Add(poolNo)

	var price decimal.Decimal
	if side == domain.SideYes {
		price = poolYes.Div(total)
	} else {
		price = poolNo.Div(total)
	}

	return BuyQuote{
		Shares:  net.Div(price),
		Price:   price,
		Fee:     fee,
		Net:     net,
		PoolYes: poolYes,
		PoolNo:  poolNo,
	}, nil
}

// Sell quotes liquidating shares on side. The payout is struck at the spot
// price before the pool is touched; only the net payout after the exit fee
// leaves the pool, so the fee remains behind as retained liquidity. The net
// payout is capped at the side's pool balance: accumulated shares can be
// worth more at spot than the pool holds, and a pool never goes negative.
func Sell(poolYes, poolNo decimal.Decimal, side domain.Side, shares decimal.Decimal) (SellQuote, error) {
	if !shares.IsPositive() {
		return SellQuote{}, ErrNonPositiveShares
	}
	price, err := Spot(poolYes, poolNo, side)
	if err != nil {
		return SellQuote{}, err
	}

	payout := shares.Mul(price)
	fee := payout.Mul(FeeRate)
	net := payout.Sub(fee)

	sidePool := poolYes
	if side == domain.SideNo {
		sidePool = poolNo
	}
	if net.GreaterThan(sidePool) {
		net = sidePool
		payout = net.Div(decimal.NewFromInt(1).Sub(FeeRate))
		fee = payout.Sub(net)
	}

	if side == domain.SideYes {
		poolYes = poolYes.Sub(net)
	} else {
		poolNo = poolNo.Sub(net)
	}

	return SellQuote{
		Payout:  payout,
		Price:   price,
		Fee:     fee,
		Net:     net,
		PoolYes: poolYes,
		PoolNo:  poolNo,
	}, nil
}
