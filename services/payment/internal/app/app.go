package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JRebertt/shortcart-v3/pkg/database"
	"github.com/JRebertt/shortcart-v3/pkg/health"
	"github.com/JRebertt/shortcart-v3/pkg/httpclient"
	pkgkafka "github.com/JRebertt/shortcart-v3/pkg/kafka"
	"github.com/JRebertt/shortcart-v3/pkg/tracing"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/config"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/event"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/gateway/factory"
	handler "github.com/JRebertt/shortcart-v3/services/payment/internal/handler/http"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/manager"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/notification"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/repository/postgres"
	redisrepo "github.com/JRebertt/shortcart-v3/services/payment/internal/repository/redis"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/service"
	"github.com/JRebertt/shortcart-v3/services/payment/internal/webhook"
)

const (
	serviceName         = "payment"
	processedEventTTL   = 24 * time.Hour
	startupProbeTimeout = 10 * time.Second
)

// App wires together all dependencies and runs the payment service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumer       *pkgkafka.Consumer
	async          *notification.AsyncNotifier
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupProbeTimeout)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(database.NewPoolStatsCollector(pool, serviceName)); err != nil {
		logger.Warn("register pool metrics", slog.String("error", err.Error()))
	}
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	rdb, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()), slog.Int("db", cfg.RedisDB))
	if err := database.RegisterPoolMetrics(database.NewRedisStatsCollector(rdb, serviceName)); err != nil {
		logger.Warn("register redis metrics", slog.String("error", err.Error()))
	}

	// Gateways: one circuit breaker per provider, no transport retries.
	fc := factory.DefaultConfig()
	fc.HTTP.Timeout = cfg.PaymentTimeout
	fc.CircuitBreaker.Timeout = cfg.CBTimeout
	fc.CircuitBreaker.FailureRatio = cfg.CBFailureRatio
	fc.CircuitBreaker.MinRequests = cfg.CBMinRequests
	gateways := factory.New(fc, logger)

	registry := service.NewRegistry(
		postgres.NewGatewayConfigRepository(pool),
		gateways,
		logger,
		service.WithTTL(cfg.RegistryTTL),
		service.WithManagerOptions(
			manager.WithLogger(logger),
			manager.WithTimeouts(cfg.HealthCheckTimeout, cfg.PaymentTimeout),
		),
	)
	statuses := redisrepo.NewStatusStore(rdb, cfg.StatusTTL)

	// Outbound webhooks retry at the delivery layer, so the client does not.
	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.WebhookTimeout
	hc.MaxRetries = 0
	hc.UserAgent = webhook.DefaultUserAgent
	sender := webhook.NewSender(httpclient.New(hc), webhook.WithTimeout(cfg.WebhookTimeout), webhook.WithLogger(logger))
	retrying := webhook.NewRetrySender(sender, cfg.RetryPolicy(), webhook.WithRetryLogger(logger))
	dispatcher := notification.NewDispatcher(postgres.NewWebhookEndpointRepository(pool), retrying, logger)

	a := &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		rdb:            rdb,
		tracerShutdown: tracerShutdown,
	}

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	var notifier notification.Notifier
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := a.producer.Ping(ctx); err != nil {
			logger.Warn("kafka unreachable at startup, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.consumer = event.NewConsumer(
			cfg.KafkaBrokers,
			event.NewConsumerHandler(dispatcher, logger),
			redisrepo.NewIdempotencyStore(rdb, event.ConsumerGroupID, processedEventTTL),
			a.dlq,
			logger,
		)
		notifier = event.NewKafkaNotifier(a.producer, logger)
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
	} else {
		logger.Info("kafka not configured, delivering notifications in-process")
		a.async = notification.NewAsyncNotifier(dispatcher, cfg.NotificationTimeout, logger)
		notifier = a.async
	}

	gatewayService := service.NewGatewayService(registry, statuses, notifier, logger,
		service.WithPlatformFee(cfg.PlatformFeeBP),
	)

	router := handler.NewRouter(gatewayService, healthHandler, logger)
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.PaymentTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and the notification consumer, then blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("notification consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown stops components in dependency order: HTTP first so no new
// payments arrive, then pending notifications, then the tracer, Kafka and
// the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.async != nil {
		if err := a.async.Wait(ctx); err != nil {
			a.logger.Warn("pending notifications abandoned", slog.String("error", err.Error()))
		}
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("notification consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
