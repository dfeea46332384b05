package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

// EnsureUser returns the account for a wallet address, creating it with a
// zero balance on first sight. Addresses are matched case-insensitively.
func (e *Engine) EnsureUser(ctx context.Context, wallet string) (domain.User, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return domain.User{}, fmt.Errorf("engine: wallet address is required: %w", domain.ErrInvalidInput)
	}

	user, err := e.store.Users().GetByWallet(ctx, wallet)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("engine: lookup wallet: %w", err)
	}

	now := e.now()
	user = domain.User{
		ID:               newID(),
		WalletAddress:    wallet,
		AvailableBalance: decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return e.store.Users().GetByWallet(ctx, wallet)
		}
		return domain.User{}, fmt.Errorf("engine: create user: %w", err)
	}

	e.log.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("wallet", wallet))
	return user, nil
}

// User returns an account by id.
func (e *Engine) User(ctx context.Context, id string) (domain.User, error) {
	user, err := e.store.Users().GetByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("engine: load user: %w", err)
	}
	return user, nil
}

// UserPositions returns every position a user holds.
func (e *Engine) UserPositions(ctx context.Context, userID string) ([]domain.Position, error) {
	positions, err := e.store.Positions().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: list positions: %w", err)
	}
	return positions, nil
}
