package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calebhwang/predictd/internal/agent"
	"github.com/calebhwang/predictd/internal/cache/redis"
	"github.com/calebhwang/predictd/internal/chain"
	"github.com/calebhwang/predictd/internal/config"
	"github.com/calebhwang/predictd/internal/domain"
	"github.com/calebhwang/predictd/internal/engine"
	"github.com/calebhwang/predictd/internal/oracle"
	"github.com/calebhwang/predictd/internal/queue"
	"github.com/calebhwang/predictd/internal/store/memory"
	"github.com/calebhwang/predictd/internal/store/postgres"
)

// Dependencies bundles everything the running service needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store       domain.Store
	SignalBus   domain.SignalBus
	LockManager domain.LockManager

	Engine *engine.Engine

	// TradeQueue is nil when trades execute synchronously.
	TradeQueue  domain.TradeQueue
	TradeWorker *queue.Worker

	// ResolutionAgent is nil when the agent is disabled.
	ResolutionAgent *agent.ResolutionAgent

	// Signer and DepositListener are nil when the chain surface is disabled.
	Signer          *chain.WithdrawalSigner
	DepositListener *chain.DepositListener
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Storage ---
	switch cfg.Storage {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Store = postgres.NewStore(pgClient)

	case "memory":
		deps.Store = memory.New()

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown storage backend %q", cfg.Storage)
	}

	// --- Signal bus and locks ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	} else {
		deps.SignalBus = memory.NewBus()
		deps.LockManager = memory.NewLockManager()
	}

	// --- Trading engine ---
	engineOpts := []engine.Option{engine.WithLockWait(cfg.Engine.LockWait)}
	if cfg.Redis.Enabled {
		// Several replicas may share one database; market writes then
		// serialize through a redis lease, not just the local lock.
		engineOpts = append(engineOpts, engine.WithLockManager(deps.LockManager))
	}
	deps.Engine = engine.New(deps.Store, deps.SignalBus, log, engineOpts...)

	// --- Async trade path ---
	if cfg.Engine.AsyncTrades {
		deps.TradeQueue = queue.NewStreamQueue(deps.SignalBus)
		deps.TradeWorker = queue.NewWorker(deps.SignalBus, deps.Engine, log)
	}

	// --- Resolution agent ---
	if cfg.Agent.Enabled {
		quotes := oracle.NewWithFallback(oracle.NewCoinGecko(cfg.Agent.OracleBaseURL), log)
		deps.ResolutionAgent = agent.NewResolutionAgent(
			deps.Store, deps.Engine, quotes, deps.LockManager, log,
			cfg.Agent.ResolutionInterval,
		)
	}

	// --- On-chain deposits and withdrawals ---
	if cfg.Chain.Enabled {
		keyHex, err := chain.ResolveSigningKey(chain.KeySource{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signing key: %w", err)
		}
		signer, err := chain.NewWithdrawalSigner(keyHex, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: withdrawal signer: %w", err)
		}
		deps.Signer = signer

		listener, err := chain.NewDepositListener(ctx, cfg.Chain.WSURL, cfg.Chain.VaultAddress, deps.Engine, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: deposit listener: %w", err)
		}
		deps.DepositListener = listener
	}

	return deps, cleanup, nil
}
