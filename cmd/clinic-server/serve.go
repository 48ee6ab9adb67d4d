package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/config"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/catalog"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/invoice"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/patient"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/procedure"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/report"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/audit"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/events"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/middleware"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/telemetry"
	"github.com/GScandelari/curva-mestra-system-sub005/migrations"
)

const shutdownTimeout = 10 * time.Second

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Str("service", "clinic-server").Logger()
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Str("default_tenant", cfg.DefaultTenant).
			Msg("development auth: requests without a token act as admin of the default clinic")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  "clinic-server",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTELEndpoint,
		Insecure:     cfg.OTELInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	pool, err := db.NewPoolWithOptions(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: cfg.DBMaxConnIdle,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	applied, err := db.NewMigrator(pool, migrations.GlobalFS).Up(ctx, migrations.GlobalSchema)
	if err != nil {
		logger.Error().Err(err).Msg("failed to migrate shared schema")
		return err
	}
	logger.Info().Int("applied", applied).Str("schema", migrations.GlobalSchema).Msg("shared schema migrated")

	dispatcher := apperr.NewDispatcher(logger)

	var (
		publisher events.Publisher = events.NopPublisher{}
		async     *events.AsyncPublisher
	)
	if cfg.EventsEnabled() {
		async = events.NewAsyncPublisher(events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic),
			dispatcher, logger, events.DefaultOptions())
		publisher = async
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("event publishing enabled")
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	defer limiter.Close()

	e := newServer(cfg, logger, pool, dispatcher, publisher, limiter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if async != nil {
		g.Go(func() error { return async.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires the middleware chain, the services and their routes.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool,
	dispatcher *apperr.Dispatcher, publisher events.Publisher, limiter *middleware.RateLimiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = dispatcher.HTTPErrorHandler

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware(nil))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Tenant-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(db.NewPoolHealth(pool, migrations.FS), cfg.DefaultTenant))

	auditStore := audit.NewStore(pool)
	api := e.Group("/api/v1",
		authMiddleware(cfg),
		limiter.Middleware(),
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.Audit(logger, auditStore),
	)

	txm := db.NewTxManager(pool)

	stock := inventory.NewService(inventory.NewItemRepoPG(pool), inventory.NewActivityRepoPG(pool), txm,
		inventory.Config{
			LowStockThreshold: cfg.LowStockThreshold,
			ExpiryWarningDays: cfg.ExpiryWarningDays,
		})
	stock.SetPublisher(publisher)
	inventory.NewHandler(stock).RegisterRoutes(api)

	products := catalog.NewService(catalog.NewRepoPG(pool))
	if cfg.CatalogRequired {
		stock.SetCatalog(products)
	}
	catalog.NewHandler(products).RegisterRoutes(api)

	patients := patient.NewService(patient.NewRepoPG(pool), txm)
	patients.SetPublisher(publisher)
	patient.NewHandler(patients).RegisterRoutes(api)

	procedures := procedure.NewService(procedure.NewRepoPG(pool), stock, txm)
	procedures.SetPublisher(publisher)
	reports := report.NewService(report.NewRepoPG(pool))
	if cfg.RequireRegisteredPatients {
		procedures.SetPatients(patients)
		reports.SetPatients(patients)
	}
	procedure.NewHandler(procedures).RegisterRoutes(api)
	report.NewHandler(reports).RegisterRoutes(api)

	invoices := invoice.NewService(invoice.NewRepoPG(pool), stock, txm)
	invoices.SetPublisher(publisher)
	invoice.NewHandler(invoices).RegisterRoutes(api)

	audit.NewHandler(auditStore).RegisterRoutes(api)

	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}

	switch cfg.ResolvedAuthMode() {
	case config.AuthModeDevelopment:
		return auth.DevAuthMiddleware(jwtCfg, cfg.DefaultTenant)
	case config.AuthModeExternal:
		jwtCfg.SigningKey = nil
	}
	return auth.JWTMiddleware(jwtCfg)
}
