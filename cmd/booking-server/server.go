package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/genelab/dnabooking/internal/config"
	"github.com/genelab/dnabooking/internal/domain/booking"
	"github.com/genelab/dnabooking/internal/domain/confirmation"
	"github.com/genelab/dnabooking/internal/platform/auth"
	"github.com/genelab/dnabooking/internal/platform/blobstore"
	"github.com/genelab/dnabooking/internal/platform/db"
	"github.com/genelab/dnabooking/internal/platform/document"
	"github.com/genelab/dnabooking/internal/platform/events"
	"github.com/genelab/dnabooking/internal/platform/middleware"
	"github.com/genelab/dnabooking/internal/platform/payment"
	"github.com/genelab/dnabooking/internal/platform/reminder"
	"github.com/genelab/dnabooking/internal/platform/signature"
)

const version = "0.1.0"

// app is the assembled server with the resources it must release.
type app struct {
	echo    *echo.Echo
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", cfg.StorageBackend).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildApp wires stores, brokers, services and routes from cfg. Optional
// backends (Redis, RabbitMQ) fall back to in-process implementations when
// their URL is unset.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	catalogs, err := loadCatalogs(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	// Storage
	var (
		pool   *pgxpool.Pool
		repo   booking.Repository
		docs   blobstore.Store
		checks []db.Check
	)
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err = db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, pool.Close)
		repo = booking.NewRepoPG(pool)
		docs = blobstore.NewPGBlobStore(pool)
		logger.Info().Msg("connected to database")
	default:
		repo = booking.NewMemoryRepo()
		docs = blobstore.NewInMemoryBlobStore()
		logger.Warn().Msg("bookings are kept in memory and lost on restart")
	}

	// Confirmation sessions and reminders share Redis
	var sessions confirmation.SessionStore = confirmation.NewMemoryStore(cfg.SessionTTL)
	var reminders reminder.Scheduler = reminder.Noop{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = client.Close() })
		sessions = confirmation.NewRedisStore(client, cfg.SessionTTL)
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})

		scheduler, err := reminder.NewAsynqScheduler(cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func() { _ = scheduler.Close() })
		reminders = scheduler
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func() { _ = p.Close() })
		publisher = p
	}

	bookings := booking.NewService(booking.Deps{
		Repo:         repo,
		Catalogs:     catalogs,
		Renderer:     document.NewRenderer(cfg.PDFFontDir, cfg.PDFFontFamily),
		Documents:    docs,
		Publisher:    publisher,
		Reminders:    reminders,
		Location:     loc,
		ReminderLead: cfg.ReminderLead,
		Logger:       logger,
	})
	confirmations := confirmation.NewService(confirmation.Deps{
		Bookings: bookings,
		Store:    sessions,
		QR: payment.NewQR(payment.Account{
			BankName:    cfg.BankName,
			Number:      cfg.BankAccount,
			AccountName: cfg.BankAccountName,
		}, 0),
		Signatures: signature.Validator{},
		Logger:     logger,
	})

	a.echo = newEcho(cfg, logger, pool, checks)
	apiV1 := a.echo.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	rateLimitCfg.BurstSize = cfg.RateLimitBurst
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	booking.NewHandler(bookings).RegisterRoutes(apiV1)
	confirmation.NewHandler(confirmations).RegisterRoutes(apiV1)

	logger.Info().
		Int("legal_services", len(catalogs.Legal.Services)).
		Int("non_legal_services", len(catalogs.NonLegal.Services)).
		Bool("redis", cfg.RedisURL != "").
		Bool("amqp", cfg.AMQPURL != "").
		Msg("services ready")
	return a, nil
}

// newEcho sets up the global middleware chain and health endpoints.
func newEcho(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, checks []db.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.HeaderDevUser, auth.HeaderDevRoles},
		ExposeHeaders: []string{middleware.RequestIDHeader, echo.HeaderContentDisposition},
	}))
	e.Use(middleware.BodyLimit(middleware.BodyLimits{Default: "256K", Signature: "2M"}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthJWKSURL == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))
	return e
}
