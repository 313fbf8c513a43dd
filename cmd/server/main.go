package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Spok95/cargoflow/internal/config"
	"github.com/Spok95/cargoflow/internal/domain/batches"
	"github.com/Spok95/cargoflow/internal/domain/billing"
	"github.com/Spok95/cargoflow/internal/domain/inspections"
	"github.com/Spok95/cargoflow/internal/domain/shipments"
	"github.com/Spok95/cargoflow/internal/domain/users"
	"github.com/Spok95/cargoflow/internal/infra/db"
	httpx "github.com/Spok95/cargoflow/internal/infra/http"
	"github.com/Spok95/cargoflow/internal/infra/logger"
	"github.com/Spok95/cargoflow/internal/service"
	"github.com/Spok95/cargoflow/internal/session"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	svc := service.New(log,
		batches.NewRepo(pool),
		shipments.NewRepo(pool),
		inspections.NewRepo(pool),
		billing.NewRepo(pool),
		cfg.Billing.Currency,
		cfg.Billing.PayeeOrgID,
	)
	api := httpx.NewAPI(log, svc, users.NewRepo(pool), session.NewRepo(pool))

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, api)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
