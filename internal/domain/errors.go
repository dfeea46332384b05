package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidTransition   = errors.New("invalid lifecycle transition")
	ErrMarketNotTradable   = errors.New("market not tradable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrMarketBusy          = errors.New("market busy")
	ErrLockHeld            = errors.New("lock already held")
	ErrOracleUnavailable   = errors.New("oracle unavailable")
)
