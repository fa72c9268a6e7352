package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/consumers"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/handler"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/config"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/i18n"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
	"github.com/medflow/pharmacy-backend/pkg/observability"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(config.ServiceName, cfg.Server.Environment, cfg.Logging.Level)
	log.Info().Msg("starting Pharmacy Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, &cfg.Tracing, cfg.Server.Environment)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	lotRepo := repository.NewLotRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	principalRepo := repository.NewPrincipalRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	checks := map[string]handler.HealthCheck{"database": db.Health}

	var sequence service.Sequence
	switch cfg.Sequence.Backend {
	case config.SequenceBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		sequence = repository.NewRedisSequence(rdb, cfg.Sequence.KeyTTL)
		checks["redis"] = func(ctx context.Context) map[string]string {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return map[string]string{"status": "down", "error": err.Error()}
			}
			return map[string]string{"status": "up"}
		}
	default:
		sequence = repository.NewSequenceRepository(db)
	}
	log.Info().Str("backend", cfg.Sequence.Backend).Msg("sequence backend selected")

	// Messaging. Outside staging and production the service runs without a
	// broker and drops its events.
	var publisher *events.PharmacyEventPublisher
	var auditPublisher *events.AuditEventPublisher
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	switch {
	case err != nil && config.IsProductionLike(cfg.Server.Environment):
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	case err != nil:
		log.Warn().Err(err).Msg("RabbitMQ unavailable, events disabled")
		rmq = nil
	default:
		defer rmq.Close()
		checks["rabbitmq"] = func(context.Context) map[string]string { return rmq.Health() }

		if err := rmq.DeclareDeadLetterQueue(config.ServiceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}
		if publisher, err = events.NewRabbitPharmacyEventPublisher(rmq, config.ServiceName, log); err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		if auditPublisher, err = events.NewRabbitAuditEventPublisher(rmq, config.ServiceName, log); err != nil {
			log.Fatal().Err(err).Msg("failed to create audit event publisher")
		}
	}

	// Services
	ledger := service.NewLedger(movementRepo, sequence)
	auth := service.NewAuthorizer(principalRepo)
	audit := service.NewAuditRecorder(auditRepo, auditPublisher, log.WithComponent("audit"))
	lowStock := service.NewLowStockMonitor(lotRepo, publisher, log)

	orderService := service.NewOrderService(db, orderRepo, lotRepo, catalogRepo, ledger, auth, audit, lowStock, publisher, log.WithComponent("orders"))
	receptionService := service.NewReceptionService(db, lotRepo, catalogRepo, ledger, auth, audit, publisher, log.WithComponent("receptions"))
	stockService := service.NewStockService(db, lotRepo, catalogRepo, ledger, auth, audit, lowStock, publisher, log.WithComponent("stock"))
	journalService := service.NewJournalService(auditRepo, auth)

	if cfg.Scheduler.Enabled {
		sweeper := service.NewExpirySweeper(db, lotRepo, audit, publisher, cfg.Scheduler.ExpirySweepInterval, log.WithComponent("expiry-sweeper"))
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	// Principal sync
	if rmq != nil {
		startConsumer := func(ctx context.Context) error {
			userConsumer, err := consumers.NewUserEventConsumer(rmq, principalRepo, cfg.RabbitMQ.MaxRetries, log)
			if err != nil {
				return err
			}
			return userConsumer.Start(ctx)
		}
		if err := startConsumer(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start user event consumer")
		}
		rmq.Watch(ctx, startConsumer)
	}

	handlers := &handler.Handlers{
		Orders:  handler.NewOrderHandler(orderService, log),
		Stock:   handler.NewStockHandler(receptionService, stockService, log),
		Journal: handler.NewJournalHandler(journalService, auth, log),
		Health:  handler.NewHealthHandler(config.ServiceName, checks),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(i18n.Middleware)

	handlers.Mount(r, httputil.Authenticate(cfg.JWT.Secret, cfg.JWT.Issuer, log))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop consumers and the sweeper
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server stopped")
}
