package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielortuno/splittab-backend/internal/backfill"
	"github.com/danielortuno/splittab-backend/internal/bills"
	"github.com/danielortuno/splittab-backend/internal/cascade"
	"github.com/danielortuno/splittab-backend/internal/events"
	"github.com/danielortuno/splittab-backend/internal/friends"
	"github.com/danielortuno/splittab-backend/internal/ledger"
	"github.com/danielortuno/splittab-backend/pkg/config"
	"github.com/danielortuno/splittab-backend/pkg/db"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/metrics"
	"github.com/danielortuno/splittab-backend/pkg/migrate"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/idempotency"
	"github.com/danielortuno/splittab-backend/pkg/pubsub"
	"github.com/danielortuno/splittab-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumerMetrics := metrics.NewConsumerMetrics(prometheus.DefaultRegisterer)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	billsRepo := bills.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	eventsRepo := events.NewRepository(dbClient.DB())

	friendsService, err := friends.NewService(friends.ServiceParams{
		Repo:   friends.NewRepository(dbClient.DB()),
		DB:     dbClient,
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create friends service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:      ledgerRepo,
		BillsRepo: billsRepo,
		Friends:   friendsService,
		DB:        dbClient,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	cascadeService, err := cascade.NewService(cascade.ServiceParams{
		BillsRepo:  billsRepo,
		LedgerRepo: ledgerRepo,
		EventsRepo: eventsRepo,
		DB:         dbClient,
		Outbox:     outboxService,
		BatchSize:  cfg.Ledger.CascadeBatchSize,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cascade service", err)
		os.Exit(1)
	}

	backfillService, err := backfill.NewService(backfill.ServiceParams{
		BillsRepo: billsRepo,
		DB:        dbClient,
		Outbox:    outboxService,
		ScanLimit: cfg.Ledger.BackfillScanLimit,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create backfill service", err)
		os.Exit(1)
	}

	ledgerConsumer, err := ledger.NewConsumer(ledgerService, pubsubClient.LedgerSubscription(), idempotencyManager, consumerMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger consumer", err)
		os.Exit(1)
	}
	cascadeConsumer, err := cascade.NewConsumer(cascadeService, pubsubClient.CascadeSubscription(), idempotencyManager, consumerMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cascade consumer", err)
		os.Exit(1)
	}
	backfillConsumer, err := backfill.NewConsumer(backfillService, pubsubClient.BackfillSubscription(), idempotencyManager, consumerMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create backfill consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               dbClient,
		Redis:            redisClient,
		PubSub:           pubsubClient,
		LedgerConsumer:   ledgerConsumer,
		CascadeConsumer:  cascadeConsumer,
		BackfillConsumer: backfillConsumer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
