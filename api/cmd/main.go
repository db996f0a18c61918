package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aurorahunt/hunt-service/internal/audit"
	"github.com/aurorahunt/hunt-service/internal/config"
	"github.com/aurorahunt/hunt-service/internal/counters"
	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/infrastructure/memory"
	"github.com/aurorahunt/hunt-service/internal/infrastructure/payments"
	"github.com/aurorahunt/hunt-service/internal/infrastructure/postgres"
	"github.com/aurorahunt/hunt-service/internal/infrastructure/rabbitmq"
	"github.com/aurorahunt/hunt-service/internal/infrastructure/redis"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/aurorahunt/hunt-service/internal/security"
	"github.com/aurorahunt/hunt-service/internal/service"
	"github.com/aurorahunt/hunt-service/internal/sweeper"
	"github.com/aurorahunt/hunt-service/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "hunt-service").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(rootCtx)
	auditLog := audit.New(logger.Logger)

	// ---- Storage ----
	var (
		store      domain.Store
		counterSrc domain.CounterStore
		repo       *postgres.Repository
		mem        *memory.Store
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem = memory.New()
		store, counterSrc = mem, mem
		log.Warn().Msg("using in-memory store; state is lost on restart")
	default:
		dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres pool create failed")
		}
		defer dbPool.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		err = dbPool.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")

		repo = postgres.New(dbPool)
		store, counterSrc = repo, repo
	}

	// ---- Redis (optional) ----
	// cache stays a nil interface when redis is off so the router falls back to httprate.
	var cache domain.CacheRepository
	if cfg.RedisAddr != "" {
		rc := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Client.Close()

		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		err := rc.Client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
		cache = rc
	}

	// ---- Application service ----
	opts := []service.Option{service.WithAudit(auditLog)}
	if cache != nil {
		opts = append(opts, service.WithCache(cache))
	}
	if cfg.PaymentProviderURL != "" {
		pc := payments.New(payments.Config{
			BaseURL: cfg.PaymentProviderURL,
			APIKey:  cfg.PaymentProviderKey,
			Timeout: cfg.PaymentProviderTimeout,
		})
		opts = append(opts, service.WithPayments(pc, service.CheckoutURLs{
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
		}))
	} else {
		log.Warn().Msg("PAYMENT_PROVIDER_URL not set; checkout creation disabled")
	}
	svc := service.New(store, opts...)

	// ---- HTTP ----
	h := rest.NewHandler(svc, security.NewHMACVerifier(cfg.PaymentWebhookSecret))
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Handler:  h,
		Verifier: security.NewHS256Verifier(cfg.JWTSecret, cfg.JWTIssuer),
		Cache:    cache,
		RateLimit: rest.RateLimit{
			Enabled: cfg.RLEnabled,
			Limit:   cfg.RLLimit,
			Window:  cfg.RLWindow,
		},
		PaymentLimit: rest.RateLimit{
			Enabled: true,
			Limit:   cfg.PaymentRLLimit,
			Window:  cfg.PaymentRLWindow,
		},
		TrustProxy: !cfg.IsDev(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// ---- Messaging ----
	maintainer := counters.New(counterSrc)
	if repo != nil {
		if cfg.ConsumerEnabled {
			snapshots := rabbitmq.NewSnapshotConsumer(cfg.RabbitURL, cfg.RabbitExchange, svc)
			confirmed := rabbitmq.NewCountersConsumer(cfg.RabbitURL, cfg.RabbitExchange, maintainer)
			g.Go(func() error { return snapshots.Run(ctx) })
			g.Go(func() error { return confirmed.Run(ctx) })
		}
		if cfg.OutboxEnabled {
			worker := repo.NewOutboxWorker(cfg.RabbitURL, cfg.RabbitExchange, auditLog)
			g.Go(func() error { return worker.Run(ctx) })
			log.Info().Msg("outbox worker started")
		}
		g.Go(func() error { return repo.RunProcessedCleanup(ctx, cfg.ProcessedRetention, time.Hour) })
	} else {
		// No broker round-trip on the memory store; feed the counters directly.
		g.Go(func() error { return maintainer.Relay(ctx, mem, time.Second) })
	}

	// ---- Expiration sweep ----
	if cfg.SweepEnabled {
		sw := sweeper.New(svc, cfg.SweepInterval, cfg.SweepBatch)
		g.Go(func() error { return sw.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
