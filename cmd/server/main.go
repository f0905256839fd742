package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"rapidride/internal/app"
	"rapidride/internal/config"
	"rapidride/internal/estimator"
	"rapidride/internal/events"
	"rapidride/internal/handler"
	"rapidride/internal/identity"
	"rapidride/internal/logging"
	"rapidride/internal/middleware"
	"rapidride/internal/payments"
	"rapidride/internal/presence"
	"rapidride/internal/realtime"
	internalRedis "rapidride/internal/redis"
	"rapidride/internal/repository/memory"
	"rapidride/internal/repository/postgres"
	"rapidride/internal/service"
)

const (
	localCacheSize   = 4096
	localLimiterSize = 65536
	localReplaySize  = 8192
	supportChatLimit = 16384
)

func main() {
	// Load configuration.
	cfg := config.Load()

	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(startupCtx, cfg.Database, nrApp)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	if cfg.Database.Migrate {
		if err := postgres.Migrate(startupCtx, db); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		logger.Info("schema applied")
	}

	// Redis is optional unless required; without it every store falls
	// back to a per-process implementation.
	redisClient, err := app.NewRedisClient(startupCtx, cfg.Redis, nrApp)
	if err != nil {
		if cfg.Redis.Required {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		logger.Warn("redis unavailable, using in-process stores", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		logger.Info("connected to Redis")
	}

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	server, registry := wireServer(ctx, db, redisClient, publisher, nrApp, cfg, logger)

	sweeper := presence.NewSweeper(registry, cfg.Presence.SweepInterval, logger)
	go sweeper.Run(ctx)

	servers := []*http.Server{server}
	go serve(logger, "http", func() error { return server.ListenAndServe() })

	if cfg.Server.HTTPSEnabled {
		if fileExists(cfg.Server.CertFile) && fileExists(cfg.Server.KeyFile) {
			tlsServer := &http.Server{
				Addr:         ":" + cfg.Server.HTTPSPort,
				Handler:      server.Handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}
			servers = append(servers, tlsServer)
			go serve(logger, "https", func() error {
				return tlsServer.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
			})
		} else {
			logger.Warn("HTTPS enabled but certificate files are missing", "cert", cfg.Server.CertFile, "key", cfg.Server.KeyFile)
		}
	}

	logger.Info("server started", "port", cfg.Server.Port, "env", cfg.Env)

	// Graceful shutdown.
	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "addr", s.Addr, "error", err)
		}
	}
	if nrApp != nil {
		nrApp.Shutdown(cfg.Server.ShutdownTimeout)
	}

	logger.Info("server exited")
}

func serve(logger *slog.Logger, name string, listen func() error) {
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "listener", name, "error", err)
		os.Exit(1)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NopPublisher{}
	}
	logger.Info("publishing ride events to Kafka", "topic", cfg.Kafka.Topic)
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

func newVerifier(cfg config.AuthConfig) (*identity.ProviderVerifier, error) {
	if cfg.PublicKeyFile == "" {
		return identity.NewDevProviderVerifier(cfg.JWTSecret, cfg.Issuer, cfg.Audience), nil
	}
	key, err := identity.LoadPublicKey(cfg.PublicKeyFile)
	if err != nil {
		return nil, err
	}
	return identity.NewProviderVerifier(key, cfg.Issuer, cfg.Audience), nil
}

// wireServer wires all dependencies and returns the HTTP server and the
// presence registry that the sweeper maintains.
func wireServer(
	ctx context.Context,
	db *sql.DB,
	redisClient *redis.Client,
	publisher events.Publisher,
	nrApp *newrelic.Application,
	cfg *config.Config,
	logger *slog.Logger,
) (*http.Server, presence.Registry) {
	// Redis-backed stores, or their in-process fallbacks.
	var (
		registry  presence.Registry
		cache     estimator.Cache
		limiter   middleware.Limiter
		locker    service.DriverLocker
		replays   middleware.ReplayStore
		redisPing handler.Pinger
	)
	if redisClient != nil && cfg.Presence.Backend == "redis" {
		registry = internalRedis.NewPresenceStore(redisClient, cfg.Presence.IdleTimeout)
	} else {
		registry = presence.NewMemoryRegistry(cfg.Presence.IdleTimeout)
	}
	if redisClient != nil {
		cache = internalRedis.NewEstimateCache(redisClient)
		limiter = internalRedis.NewRateLimiter(redisClient)
		locker = internalRedis.NewLockStore(redisClient)
		replays = internalRedis.NewReplayStore(redisClient)
		redisPing = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	} else {
		cache = estimator.NewLocalCache(localCacheSize)
		limiter = middleware.NewLocalLimiter(localLimiterSize)
		replays = middleware.NewLocalReplayStore(localReplaySize)
	}

	// Initialize repositories.
	accountRepo := postgres.NewAccountRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	txRunner := postgres.NewTxRunner(db)
	supportRepo := memory.NewSupportRepository(supportChatLimit, memory.SupportRetention)

	// External clients.
	estimatorClient := estimator.NewClient(cfg.Estimator.BaseURL, cfg.Estimator.Timeout)
	estimates := estimator.New(estimatorClient, cache, cfg.Estimator.CacheTTL, logger)
	routes := estimator.NewRouter(cfg.Estimator.OSRMURL, logger)

	var psp service.PSP
	if cfg.Payments.StripeAPIKey != "" {
		psp = payments.NewStripeClient(cfg.Payments.StripeAPIKey, cfg.Payments.Currency)
	}

	// Identity.
	providerVerifier, err := newVerifier(cfg.Auth)
	if err != nil {
		logger.Error("failed to load identity provider key", "error", err)
		os.Exit(1)
	}
	sessions := identity.NewSessionIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	resolver := identity.NewResolver(accountRepo, logger)
	authenticator := identity.NewAuthenticator(identity.ChainVerifier{sessions, providerVerifier}, resolver)

	// Initialize services.
	hub := realtime.NewHub(nil, logger)
	notificationService := service.NewNotificationService(hub, registry, publisher, logger)
	paymentService := service.NewPaymentService(rideRepo, psp, logger)
	rideService := service.NewRideService(service.RideServiceDeps{
		Rides:     rideRepo,
		Accounts:  accountRepo,
		Tx:        txRunner,
		Estimator: estimates,
		Notifier:  notificationService,
		Payments:  paymentService,
		Locker:    locker,
		Logger:    logger,
	})
	driverService := service.NewDriverService(accountRepo, rideRepo, registry, notificationService, logger)
	accountService := service.NewAccountService(accountRepo, rideRepo, txRunner, providerVerifier, resolver, sessions, logger)
	supportService := service.NewSupportService(supportRepo, logger)
	hub.SetHandler(driverService)

	origins := middleware.NewOriginPolicy(cfg.Server.AllowedOrigins)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:    handler.NewRideHandler(rideService, estimatorClient, routes),
		DriverHandler:  handler.NewDriverHandler(driverService),
		AccountHandler: handler.NewAccountHandler(accountService),
		SupportHandler: handler.NewSupportHandler(supportService),
		HealthHandler:  handler.NewHealthHandler(estimatorClient, handler.PingFunc(db.PingContext), redisPing, hub),
		SocketHandler:  realtime.NewHandler(ctx, hub, authenticator, origins.Allowed),
		Authenticator:  authenticator,
		Limiter:        limiter,
		RateLimits:     cfg.RateLimit,
		Origins:        origins,
		Replays:        replays,
		NewRelicApp:    nrApp,
		Logger:         logger,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, registry
}
