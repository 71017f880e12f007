package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coffee-shop/internal/domain/account"
	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/contact"
	"github.com/xenking/coffee-shop/internal/domain/order"
	"github.com/xenking/coffee-shop/internal/handler"
	"github.com/xenking/coffee-shop/internal/messaging/kafka"
	"github.com/xenking/coffee-shop/internal/storage/postgres"
	"github.com/xenking/coffee-shop/internal/storage/redis"
	"github.com/xenking/coffee-shop/pkg/health"
	"github.com/xenking/coffee-shop/pkg/httpmiddleware"
)

const serviceName = "coffee-shop"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	displayLoc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		return errors.Wrap(err, "load display timezone")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:     "postgres",
		Endpoint: health.Readiness,
		Timeout:  5 * time.Second,
		Func:     health.PingCheck(pool),
	})
	healthSvc.Register(health.Check{
		Name:     "goroutines",
		Endpoint: health.Liveness,
		Func:     health.GoroutineCountCheck(10000),
	})

	// Optional Redis sessions.
	var sessions auth.SessionStore
	if cfg.SessionsEnabled() {
		opts, err := redis.ClientOptions(cfg.RedisURL, cfg.RedisAddr)
		if err != nil {
			return errors.Wrap(err, "redis options")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		sessions = redis.NewSessionStore(rdb)
		healthSvc.Register(health.Check{
			Name:     "redis",
			Endpoint: health.Readiness,
			Timeout:  2 * time.Second,
			Func:     func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		lg.Info("Session cookies enabled", zap.String("redis", opts.Addr), zap.Int("db", opts.DB))
	}

	// Optional Kafka events.
	var events order.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		events = pub
		lg.Info("Order events enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	contactRepo := postgres.NewContactRepository(pool)

	// Domain services.
	tokens := auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	orderService := order.NewService(productRepo, orderRepo, order.NewGenerator(), events)
	accountService := account.NewService(accountRepo, tokens, account.AdminCredentials{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	})
	contactService := contact.NewService(contactRepo)
	if cfg.Admin.PasswordHash == "" {
		lg.Warn("Admin password hash is not configured, admin login is disabled")
	}

	// HTTP handlers.
	h, err := handler.New(
		handler.Config{
			CookieName:      cfg.Auth.CookieName,
			SessionTTL:      cfg.Auth.SessionTTL,
			SecureCookie:    cfg.Auth.SecureCookie,
			DisplayLocation: displayLoc,
			LoginThrottle: httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Rate:    cfg.LoginThrottle.Rate,
				Burst:   cfg.LoginThrottle.Burst,
				Message: "too many attempts, try again later",
			}),
		},
		productRepo,
		orderService,
		accountService,
		auth.NewResolver(tokens, sessions, cfg.Auth.CookieName),
		sessions,
		m.MeterProvider().Meter(serviceName),
	)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Register(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.RouteContext(),
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.Labeler(),
			httpmiddleware.LogRequests(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
				ExposeHeaders:    []string{"X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Rate:  cfg.RateLimit.Rate,
				Burst: cfg.RateLimit.Burst,
			}),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}
