// Package agent contains background loops that act on markets without user
// interaction.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
	"github.com/calebhwang/predictd/internal/oracle"
)

// resolutionLockKey guards the scan so only one replica resolves at a time.
const resolutionLockKey = "agents:resolution"

// Resolver settles a market to an outcome. Satisfied by the engine.
type Resolver interface {
	Resolve(ctx context.Context, marketID string, outcome domain.Side) error
}

// ResolutionAgent periodically scans for active markets past their expiry,
// asks the oracle for the relevant spot price, and settles each market
// according to its resolution criteria.
type ResolutionAgent struct {
	store    domain.Store
	resolver Resolver
	oracle   oracle.Oracle
	locks    domain.LockManager
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewResolutionAgent(store domain.Store, resolver Resolver, o oracle.Oracle, locks domain.LockManager, log *slog.Logger, interval time.Duration) *ResolutionAgent {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ResolutionAgent{
		store:    store,
		resolver: resolver,
		oracle:   o,
		locks:    locks,
		log:      log,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run scans on a fixed interval until the context is cancelled.
func (a *ResolutionAgent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.log.Info("resolution agent started", slog.Duration("interval", a.interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *ResolutionAgent) tick(ctx context.Context) {
	err := a.locks.WithLock(ctx, resolutionLockKey, 2*a.interval, a.Scan)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.log.Debug("resolution scan held by another replica")
			return
		}
		a.log.Warn("resolution scan failed", slog.String("error", err.Error()))
	}
}

// Scan resolves every expired active market whose criteria can be evaluated.
// Markets with malformed criteria or an unavailable price are left for the
// next pass.
func (a *ResolutionAgent) Scan(ctx context.Context) error {
	markets, err := a.store.Markets().ListExpired(ctx, domain.MarketStatusActive, a.now())
	if err != nil {
		return fmt.Errorf("agent: list expired markets: %w", err)
	}

	for _, m := range markets {
		sig, err := a.decide(ctx, m)
		if err != nil {
			a.log.Warn("cannot decide outcome",
				slog.String("market_id", m.ID),
				slog.String("ticker", m.Ticker),
				slog.String("error", err.Error()))
			continue
		}
		if err := a.resolver.Resolve(ctx, sig.MarketID, sig.Outcome); err != nil {
			a.log.Warn("resolve failed",
				slog.String("market_id", sig.MarketID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (a *ResolutionAgent) decide(ctx context.Context, m domain.Market) (domain.ResolutionSignal, error) {
	crit, err := ParseCriteria(m.ResolutionCriteria)
	if err != nil {
		return domain.ResolutionSignal{}, err
	}
	price, err := a.oracle.Price(ctx, crit.Asset)
	if err != nil {
		return domain.ResolutionSignal{}, err
	}

	hit := false
	switch crit.Op {
	case ">":
		hit = price.GreaterThan(crit.Target)
	case "<":
		hit = price.LessThan(crit.Target)
	}
	a.log.Info("outcome decided",
		slog.String("ticker", m.Ticker),
		slog.String("asset", crit.Asset),
		slog.String("price", price.String()),
		slog.String("criteria", m.ResolutionCriteria),
		slog.Bool("hit", hit))
	sig := domain.ResolutionSignal{MarketID: m.ID, Outcome: domain.SideNo}
	if hit {
		sig.Outcome = domain.SideYes
	}
	return sig, nil
}

// Criteria is a parsed resolution rule of the form "<asset> <op> <target>",
// for example "bitcoin > 100000".
type Criteria struct {
	Asset  string
	Op     string
	Target decimal.Decimal
}

func ParseCriteria(s string) (Criteria, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Criteria{}, fmt.Errorf("agent: criteria %q: want \"<asset> <op> <target>\": %w", s, domain.ErrInvalidInput)
	}
	op := parts[1]
	if op != ">" && op != "<" {
		return Criteria{}, fmt.Errorf("agent: criteria %q: operator must be > or <: %w", s, domain.ErrInvalidInput)
	}
	target, err := decimal.NewFromString(parts[2])
	if err != nil {
		return Criteria{}, fmt.Errorf("agent: criteria %q: parse target: %w", s, err)
	}
	return Criteria{Asset: strings.ToLower(parts[0]), Op: op, Target: target}, nil
}
