package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

const userCols = `id, wallet_address, available_balance, created_at, updated_at`

type userStore struct {
	c *Client
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.WalletAddress, &u.AvailableBalance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: scan user: %w", err)
	}
	return u, nil
}

func (s *userStore) Create(ctx context.Context, u domain.User) error {
	_, err := s.c.q(ctx).Exec(ctx, `
		INSERT INTO users (`+userCols+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.WalletAddress, u.AvailableBalance, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert user: %w", err)
	}
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := s.c.q(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *userStore) GetByWallet(ctx context.Context, wallet string) (domain.User, error) {
	row := s.c.q(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE LOWER(wallet_address) = LOWER($1)`, wallet)
	return scanUser(row)
}

func (s *userStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	// Relative update: the row's current value is read and written in one
	// statement, so concurrent transactions on the same user serialize on
	// the row lock instead of overwriting each other's balances. The
	// predicate keeps an over-debit from matching any row; the CHECK
	// constraint backs it as a last line of defense.
	row := s.c.q(ctx).QueryRow(ctx, `
		UPDATE users
		SET available_balance = available_balance + $2, updated_at = $3
		WHERE id = $1 AND available_balance + $2 >= 0
		RETURNING available_balance`,
		id, delta, time.Now().UTC(),
	)
	var balance decimal.Decimal
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown id and over-debit both match zero rows; look the
			// user up to tell them apart.
			if _, lookupErr := s.GetByID(ctx, id); lookupErr != nil {
				return decimal.Zero, lookupErr
			}
			return decimal.Zero, domain.ErrInsufficientBalance
		}
		return decimal.Zero, fmt.Errorf("postgres: adjust balance: %w", err)
	}
	return balance, nil
}
