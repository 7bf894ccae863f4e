// Command server runs the loan application lifecycle service: the HTTP API,
// the background processing worker pool and the audit outbox publisher, all
// constructed explicitly here and shut down together.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	appHandler "loanflow/internal/application/handler"
	appMetrics "loanflow/internal/application/metrics"
	"loanflow/internal/application/service"
	"loanflow/internal/application/store"
	"loanflow/internal/audit"
	"loanflow/internal/country"
	"loanflow/internal/crypto"
	"loanflow/internal/jobs"
	jwttoken "loanflow/internal/jwt_token"
	"loanflow/internal/platform/config"
	"loanflow/internal/platform/database"
	"loanflow/internal/platform/httpserver"
	"loanflow/internal/platform/kafka"
	"loanflow/internal/platform/logger"
	platformredis "loanflow/internal/platform/redis"
	httptransport "loanflow/internal/transport/http"
	"loanflow/internal/webhook"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		log.Error("failed to connect to kafka", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
	}

	encryptor, err := crypto.NewFieldEncryptor(cfg.Crypto.FieldKey)
	if err != nil {
		log.Error("failed to initialize field encryption", "error", err)
		os.Exit(1)
	}
	hasher, err := crypto.NewDocumentHasher(cfg.Crypto.DocumentHashKey)
	if err != nil {
		log.Error("failed to initialize document hashing", "error", err)
		os.Exit(1)
	}

	// Stores and transactions.
	appStore := store.NewPostgres(db, encryptor)
	txRunner := store.NewPostgresTxRunner(db)
	auditStore := audit.NewPostgres(db)
	eventStore := webhook.NewPostgres(db)
	failedJobs := jobs.NewPostgresFailedJobStore(db)

	// Background processing.
	queue := jobs.NewQueue(cfg.Jobs.QueueSize)
	scheduler := jobs.NewScheduler(queue)

	var locker jobs.Locker = jobs.NewLocalLocker()
	var statsCache service.StatsCache = service.NoopStatsCache{}
	if redisClient != nil {
		locker = jobs.NewRedisLocker(redisClient)
		statsCache = service.NewRedisStatsCache(redisClient, cfg.Stats.CacheTTL)
	}

	// Domain services.
	countries := country.NewFactory(country.DefaultRulesConfig())
	apps := service.New(
		appStore,
		txRunner,
		auditStore,
		hasher,
		countries,
		scheduler,
		statsCache,
		appMetrics.New(),
		log,
	)

	processor := jobs.NewApplicationProcessor(apps, countries)
	deadLetter := jobs.NewDeadLetterHandler(failedJobs, cfg.Jobs.MaxRetries, log)
	pool := jobs.NewPool(jobs.Config{
		Workers:     cfg.Jobs.Workers,
		MaxRetries:  cfg.Jobs.MaxRetries,
		BaseBackoff: cfg.Jobs.BaseBackoff,
		MaxBackoff:  cfg.Jobs.MaxBackoff,
		LockLease:   cfg.Jobs.LockLease,
	}, queue, processor, locker, deadLetter, log)

	webhookProcessor := webhook.NewProcessor(
		cfg.Webhook.Secret, cfg.Webhook.MaxBodyBytes, eventStore, apps, txRunner, log)

	// HTTP surface.
	jwtService := jwttoken.NewJWTService(cfg.Admin.JWTSigningKey, "loanflow", "loanflow-admin")
	adminValidator := jwttoken.NewJWTServiceAdapter(jwtService)

	router := httptransport.NewRouter(log, 0).
		WithHealthCheck("postgres", httptransport.HealthFunc(func(ctx context.Context) error {
			return database.Health(ctx, db)
		})).
		WithHandler(appHandler.New(apps, adminValidator, log)).
		WithHandler(webhook.NewHandler(webhookProcessor, cfg.Webhook.MaxBodyBytes, log))
	if redisClient != nil {
		router = router.WithHealthCheck("redis", redisClient)
	}

	srv := httpserver.New(cfg.Server.Addr, router.Build())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return pool.Run(ctx)
	})

	if producer != nil {
		publisher := audit.NewPublisher(auditStore, producer, log)
		g.Go(func() error {
			if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
