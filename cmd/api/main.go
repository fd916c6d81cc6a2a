package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/ai"
	httptransport "github.com/spec-kit/helpdesk-pipeline/internal/api/http"
	"github.com/spec-kit/helpdesk-pipeline/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-pipeline/internal/auth"
	"github.com/spec-kit/helpdesk-pipeline/internal/bootstrap"
	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/events"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/directory"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/knowledge"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/tracker"
	"github.com/spec-kit/helpdesk-pipeline/internal/observability"
	"github.com/spec-kit/helpdesk-pipeline/internal/persistence"
	"github.com/spec-kit/helpdesk-pipeline/internal/service"
	"github.com/spec-kit/helpdesk-pipeline/internal/worker"
	"github.com/spec-kit/helpdesk-pipeline/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, db, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer db.Close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	var sinks []events.Sink
	mqttSink, err := events.ConnectMQTT(cfg.MQTT, logger)
	if err != nil {
		logger.Warn("mqtt unavailable, events stay in-process", zap.Error(err))
	} else if mqttSink != nil {
		defer mqttSink.Close()
		sinks = append(sinks, mqttSink)
	}
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, sinks...))

	helpdeskClient := bootstrap.NewHelpdeskClient(cfg.Helpdesk, redis, logger)

	provider, model, err := ai.NewProvider(cfg.AI, nil)
	if err != nil {
		logger.Fatal("failed to configure ai provider", zap.Error(err))
	}

	var dir workflow.Directory
	if client := directory.NewClient(cfg.Directory, nil); client != nil {
		dir = client
	} else {
		logger.Warn("directory not configured, account workflows disabled")
	}
	scenarios := workflow.NewDefaultRegistry(dir)
	if err := scenarios.LoadPriorities(cfg.Pipeline.WorkflowPrioritiesFile); err != nil {
		logger.Fatal("failed to load workflow priorities", zap.Error(err))
	}

	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		AgentRepo:      store.Agents,
		AssignmentRepo: store.Assignments,
		Redis:          redis.Client,
		Policy:         cfg.Assignment.Policy,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})

	deps := service.ProcessingDependencies{
		Helpdesk:             helpdeskClient,
		Knowledge:            knowledge.NewClient(cfg.Knowledge, nil),
		Classifier:           ai.NewClassifier(provider, model, cfg.AI.ClassifyMaxTokens, logger),
		Responder:            ai.NewResponder(provider, model, cfg.AI.GenerateMaxTokens),
		Workflows:            scenarios,
		Assigner:             assignment,
		CustomerRepo:         store.Customers,
		TicketRepo:           store.Tickets,
		RunRepo:              store.Runs,
		Dispatcher:           dispatcher,
		Metrics:              metrics,
		Logger:               logger,
		ReplyFromAddress:     cfg.Pipeline.ReplyFromAddress,
		ConsolidateMaxLength: cfg.Pipeline.ConsolidateMaxLength,
	}
	if client := tracker.NewClient(cfg.Tracker, nil); client != nil {
		deps.Tracker = client
	} else {
		logger.Warn("tracker not configured, escalations will only be logged")
	}
	pipeline := service.NewProcessingService(deps)

	syncer := service.NewSyncService(service.SyncDependencies{
		Helpdesk:     helpdeskClient,
		CustomerRepo: store.Customers,
		TicketRepo:   store.Tickets,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)
	if cfg.Auth.WebhookSecretHash == "" {
		logger.Warn("WEBHOOK_SECRET_HASH not set, webhook deliveries are not authenticated")
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics,
			handlers.Dependency{Name: cfg.Store.Driver, Pinger: db},
			handlers.Dependency{Name: "redis", Pinger: redis},
		),
		Webhook:           handlers.NewWebhookHandler(pipeline, cfg.Pipeline.MaxDuration, logger),
		Tickets:           handlers.NewTicketsHandler(store.Tickets, store.Runs, helpdeskClient, logger),
		Sync:              handlers.NewSyncHandler(syncer),
		AuthMiddleware:    auth.NewAuthMiddleware(tokens),
		WebhookSecretHash: cfg.Auth.WebhookSecretHash,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
