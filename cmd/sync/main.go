package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/api/dto"
	"github.com/spec-kit/helpdesk-pipeline/internal/bootstrap"
	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/observability"
	"github.com/spec-kit/helpdesk-pipeline/internal/persistence"
	"github.com/spec-kit/helpdesk-pipeline/internal/service"
)

func main() {
	limit := pflag.IntP("limit", "n", dto.DefaultSyncLimit, "number of recent helpdesk tickets to mirror")
	dryRun := pflag.Bool("dry-run", false, "report what would be synced without writing")
	pflag.Parse()

	if *limit > dto.MaxSyncLimit {
		*limit = dto.MaxSyncLimit
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer db.Close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	syncer := service.NewSyncService(service.SyncDependencies{
		Helpdesk:     bootstrap.NewHelpdeskClient(cfg.Helpdesk, redis, logger),
		CustomerRepo: store.Customers,
		TicketRepo:   store.Tickets,
		Logger:       logger,
	})

	report, err := syncer.Sync(ctx, *limit, *dryRun)
	if err != nil {
		logger.Error("sync failed", zap.Error(err))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("encode report", zap.Error(err))
		os.Exit(1)
	}
	if report.Stats.Failed > 0 {
		os.Exit(1)
	}
}
