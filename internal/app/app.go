// Package app owns the top-level application lifecycle. It wires the store,
// signal bus, trading engine, background workers, and HTTP server from the
// configuration, runs them, and tears everything down on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/calebhwang/predictd/internal/config"
	"github.com/calebhwang/predictd/internal/server"
	"github.com/calebhwang/predictd/internal/server/handler"
	"github.com/calebhwang/predictd/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, log *slog.Logger) *App {
	return &App{
		cfg: cfg,
		log: log.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the HTTP server and every enabled
// background loop, and blocks until the context is cancelled or a component
// fails.
func (a *App) Run(ctx context.Context) error {
	a.log.InfoContext(ctx, "starting",
		slog.String("storage", a.cfg.Storage),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("async_trades", a.cfg.Engine.AsyncTrades),
		slog.Bool("agent", a.cfg.Agent.Enabled),
		slog.Bool("chain", a.cfg.Chain.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	hub := ws.NewHub(deps.SignalBus, a.log)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(),
		Markets: handler.NewMarketHandler(deps.Engine, a.log),
		Trading: handler.NewTradingHandler(deps.Engine, deps.TradeQueue, a.log),
		Users:   handler.NewUserHandler(deps.Engine, deps.Signer, a.log),
		Admin:   handler.NewAdminHandler(deps.Engine, a.log),
	}
	srv := server.NewServer(server.Config{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		AdminAPIKey:  a.cfg.Server.AdminAPIKey,
	}, handlers, hub, a.log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCancel(hub.Run(gctx))
	})

	if deps.TradeWorker != nil {
		g.Go(func() error {
			return ignoreCancel(deps.TradeWorker.Run(gctx))
		})
	}
	if deps.ResolutionAgent != nil {
		g.Go(func() error {
			return ignoreCancel(deps.ResolutionAgent.Run(gctx))
		})
	}
	if deps.DepositListener != nil {
		g.Go(func() error {
			return ignoreCancel(deps.DepositListener.Run(gctx))
		})
	}

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.log.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ignoreCancel maps context cancellation to a clean exit so one loop winding
// down does not surface as an application error.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
