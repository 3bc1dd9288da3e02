package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/api"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/auth"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/cart"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/checkout"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/config"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/database"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/events"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/inventory"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/logging"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/metrics"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/order"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("storefront stopped with error", zap.Error(err))
	}
	logger.Info("storefront stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	if cfg.OTelEnabled {
		tp, err := initTracer(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Warn("error shutting down tracer", zap.Error(err))
			}
		}()

		mp, err := initMetrics(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := mp.Shutdown(context.Background()); err != nil {
				logger.Warn("error shutting down meter", zap.Error(err))
			}
		}()
	}
	tracer := otel.Tracer(cfg.ServiceName)
	meter := otel.Meter(cfg.ServiceName)

	// Initialize database
	pool, err := database.Open(ctx, database.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		Attempts: 30,
		Migrate:  cfg.RunMigrations,
	}, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	gateway, err := payment.NewGateway(payment.Config{
		BaseURL:      cfg.Payment.BaseURL,
		SecretKey:    cfg.Payment.SecretKey,
		Timeout:      cfg.Payment.Timeout,
		MaxRetries:   cfg.Payment.MaxRetries,
		RetryWait:    cfg.Payment.RetryWait,
		RetryMaxWait: cfg.Payment.RetryMaxWait,
	}, meter, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMetrics := metrics.New("storefront", registry)

	// Initialize dependencies
	carts := cart.NewRedisStore(redisClient, cfg.CartTTL)
	ledger := inventory.NewLedger(inventory.NewRepository(pool), tracer)
	orders := order.NewRepository(pool)
	outbox := events.NewOutbox(pool)

	finalizer := checkout.NewFinalizer(checkout.Dependencies{
		Carts:    carts,
		Payments: gateway,
		Tx:       database.NewStore(pool),
		Ledger:   ledger,
		Orders:   orders,
		Outbox:   outbox,
		Locker:   cart.NewCheckoutLock(redisClient, cfg.CheckoutLockTTL, cfg.CheckoutLockWait),
		Metrics:  promMetrics,
		Tracer:   tracer,
		Logger:   logger.Named("checkout"),
	}, checkout.Options{
		TxTimeout:        cfg.CheckoutTxTimeout,
		CartClearTimeout: cfg.CartClearTimeout,
		Currency:         cfg.Payment.Currency,
	})

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		ServiceName:    cfg.ServiceName,
		Logger:         logger,
		Verifier:       auth.NewVerifier(cfg.JWTSecret),
		Metrics:        promMetrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx).Err()
		},
	}, api.Handlers{
		Cart:    api.NewCartHandler(carts, ledger, tracer, logger),
		Orders:  api.NewOrderHandler(finalizer, orders, tracer, logger),
		Payment: api.NewPaymentHandler(carts, ledger, gateway, cfg.Payment.Currency, tracer, logger),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("storefront listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.CheckoutTxTimeout+5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		relay := events.NewRelay(
			outbox,
			events.NewKafkaWriter(cfg.KafkaOrderTopic, cfg.KafkaBrokers...),
			cfg.OutboxPollInterval,
			logger.Named("outbox"),
		).OnPublish(promMetrics.ObservePublish)
		g.Go(func() error {
			return relay.Run(gctx)
		})
	} else {
		logger.Info("KAFKA_BROKERS not set, outbox relay disabled")
	}

	return g.Wait()
}
