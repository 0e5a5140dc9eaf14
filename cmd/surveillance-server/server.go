package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/surveillance/internal/config"
	"github.com/ehr/surveillance/internal/domain/observation"
	"github.com/ehr/surveillance/internal/domain/surveillance"
	"github.com/ehr/surveillance/internal/platform/auth"
	"github.com/ehr/surveillance/internal/platform/blobstore"
	"github.com/ehr/surveillance/internal/platform/db"
	"github.com/ehr/surveillance/internal/platform/middleware"
	"github.com/ehr/surveillance/internal/platform/notification"
	"github.com/ehr/surveillance/internal/platform/openapi"
	"github.com/ehr/surveillance/internal/platform/reporting"
	"github.com/ehr/surveillance/internal/platform/sandbox"
	"github.com/ehr/surveillance/internal/platform/telemetry"
	"github.com/ehr/surveillance/internal/platform/webhook"
	"github.com/ehr/surveillance/internal/platform/websocket"
)

const version = "0.1.0"

// deps are the backends the HTTP surface is assembled from.
type deps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	repo     observation.Repository
	pinger   db.Pinger
	pool     *pgxpool.Pool
	cache    middleware.CacheStore
	blobs    blobstore.BlobStore
	notifier *notification.Manager
	metrics  *telemetry.Metrics
	tracer   trace.TracerProvider
	now      func() time.Time
}

// app is the assembled server.
type app struct {
	echo     *echo.Echo
	obs      *observation.Service
	dash     *surveillance.Service
	seeder   *sandbox.Seeder
	notifier *notification.Manager
	hub      *websocket.Hub
	webhooks *webhook.Manager
}

func newApp(d deps) (*app, error) {
	cfg := d.cfg
	if d.notifier == nil {
		d.notifier = notification.NewManager(notification.NewTemplateEngine(), d.logger)
	}
	if d.blobs == nil {
		d.blobs = blobstore.NewInMemoryBlobStore()
	}
	if d.cache == nil {
		d.cache = middleware.NewInMemoryCacheStore()
	}
	if d.metrics == nil {
		d.metrics = telemetry.NewMetrics()
	}

	// Domain services
	obsSvc := observation.NewService(d.repo, d.logger)
	dashSvc := surveillance.NewService(obsSvc, d.notifier, d.logger)
	if d.now != nil {
		obsSvc.SetClock(d.now)
	}
	obsSvc.OnChange(func(ctx context.Context) {
		d.cache.Clear(ctx)
		d.metrics.Inc("store.changes")
	})

	// Live push and webhook subscribers ride along the broker publishers.
	hub := websocket.NewHub(d.logger)
	obsSvc.OnChange(hub.NotifyChange)
	hooks := webhook.NewManager(webhook.NewMemoryStore(0), d.logger)
	d.notifier.AddPublisher(notification.ChannelAlert, hub)
	d.notifier.AddPublisher(notification.ChannelAlert, hooks.Publisher(notification.ChannelAlert))
	d.notifier.AddPublisher(notification.ChannelArchive, hooks.Publisher(notification.ChannelArchive))
	d.metrics.GaugeFunc("websocket.clients", "Connected live dashboard clients.",
		func() float64 { return float64(hub.ClientCount()) })

	catalog := reporting.NewCatalog()
	if err := dashSvc.RegisterReports(catalog); err != nil {
		return nil, err
	}
	archiver := reporting.NewArchiver(d.blobs, d.notifier, d.logger)

	seeder := sandbox.NewSeeder(obsSvc, d.logger)
	seeder.SetDefaultCount(cfg.SeedCount)
	if d.now != nil {
		seeder.SetClock(d.now)
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.TracingMiddleware(d.tracer))
	e.Use(d.metrics.Middleware())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30*time.Second, "/api/v1/reports"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-None-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Disposition", "ETag", middleware.CacheStatusHeader, telemetry.TraceIDHeader},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{SigningKey: []byte(cfg.AuthSigningKey), Skipper: auth.AuthSkipper}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(d.pinger, cfg.StoreDriver))
	e.GET("/metrics", d.metrics.Handler(), auth.RequireRole(auth.RoleAdmin))
	if d.pool != nil {
		pool := d.pool
		d.metrics.GaugeFunc("db.pool.total_connections", "Open connections in the pgx pool.",
			func() float64 { return float64(pool.Stat().TotalConns()) })
		d.metrics.GaugeFunc("db.pool.acquired_connections", "Connections currently in use.",
			func() float64 { return float64(pool.Stat().AcquiredConns()) })
	}

	// API group
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	adminOnly := auth.RequireRole(auth.RoleAdmin)

	observation.NewHandler(obsSvc).RegisterRoutes(apiV1)
	surveillance.NewHandler(dashSvc).RegisterRoutes(apiV1, middleware.ResponseCache(d.cache, cfg.CacheTTL()))
	reporting.NewHandler(catalog, archiver).RegisterRoutes(apiV1)
	notification.NewHandler(d.notifier).RegisterRoutes(apiV1, adminOnly)
	blobstore.NewBlobHandler(d.blobs).RegisterRoutes(apiV1, adminOnly)
	sandbox.NewSeedHandler(seeder).RegisterRoutes(apiV1, adminOnly)
	webhook.NewHandler(hooks).RegisterRoutes(apiV1, adminOnly)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	// API docs, built from the final route table on each request.
	openapi.NewGenerator(e, version, "").RegisterRoutes(e.Group("/api"))

	return &app{
		echo:     e,
		obs:      obsSvc,
		dash:     dashSvc,
		seeder:   seeder,
		notifier: d.notifier,
		hub:      hub,
		webhooks: hooks,
	}, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Exporter:       cfg.OTelExporter,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(sctx)
	}()

	// Database
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("connected to store")

	d := deps{
		cfg:    cfg,
		logger: logger,
		repo:   st.repo,
		pinger: st.pinger,
		pool:   st.pool,
	}

	// Response cache
	if cfg.RedisURL != "" {
		rdb, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		d.cache = middleware.NewRedisCacheStore(rdb, "", logger)
		logger.Info().Msg("using redis response cache")
	} else {
		mem := middleware.NewInMemoryCacheStore()
		mem.StartCleanup(ctx, time.Minute)
		d.cache = mem
	}

	// Notifications
	d.notifier = notification.NewManager(notification.NewTemplateEngine(), logger)
	if len(cfg.KafkaBrokers) > 0 {
		kp := notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		defer kp.Close()
		d.notifier.SetPublisher(notification.ChannelAlert, kp)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaAlertTopic).Msg("outbreak alerts go to kafka")
	}

	// Report archive
	if cfg.ReportBucket != "" {
		s3c, err := blobstore.NewS3Client(ctx)
		if err != nil {
			return err
		}
		d.blobs = blobstore.NewS3BlobStore(s3c, cfg.ReportBucket)
		logger.Info().Str("bucket", cfg.ReportBucket).Msg("archiving reports to s3")

		if cfg.ReportQueue != "" {
			sqsc, err := notification.NewSQSClient(ctx)
			if err != nil {
				return err
			}
			sp, err := notification.NewSQSPublisher(ctx, sqsc, cfg.ReportQueue)
			if err != nil {
				return err
			}
			d.notifier.SetPublisher(notification.ChannelArchive, sp)
		}
	}

	a, err := newApp(d)
	if err != nil {
		return err
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(sctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
