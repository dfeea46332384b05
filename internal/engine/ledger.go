package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

func (e *Engine) appendEntries(ctx context.Context, now time.Time, entries ...domain.LedgerEntry) error {
	for _, entry := range entries {
		entry.CreatedAt = now
		if err := e.store.Ledger().Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry %s: %w", entry.Kind, err)
		}
	}
	return nil
}

// Deposit credits collateral to a user's balance with a matching DEPOSIT
// ledger entry. Source tags where the funds came from, such as "mock" or a
// chain transaction hash.
func (e *Engine) Deposit(ctx context.Context, userID string, amount decimal.Decimal, source string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("engine: deposit amount must be positive: %w", domain.ErrInvalidInput)
	}

	var newBalance decimal.Decimal
	err := e.store.WithinTx(ctx, func(ctx context.Context) error {
		now := e.now()
		var err error
		newBalance, err = e.store.Users().AdjustBalance(ctx, userID, amount)
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		return e.appendEntries(ctx, now, domain.LedgerEntry{
			ID:       newID(),
			UserID:   userID,
			Kind:     domain.EntryDeposit,
			Amount:   amount,
			Metadata: map[string]any{"source": source},
		})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("engine: deposit: %w", err)
	}

	e.log.Info("deposit credited",
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
		slog.String("source", source))
	return newBalance, nil
}

// LedgerHistory returns a user's ledger entries, newest first.
func (e *Engine) LedgerHistory(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	entries, err := e.store.Ledger().ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: ledger history: %w", err)
	}
	return entries, nil
}

// LedgerSum returns the signed sum of all of a user's entries. It equals the
// net balance change since the account was created.
func (e *Engine) LedgerSum(ctx context.Context, userID string) (decimal.Decimal, error) {
	sum, err := e.store.Ledger().SumByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("engine: ledger sum: %w", err)
	}
	return sum, nil
}
