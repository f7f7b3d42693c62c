package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/cache"
	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/erp"
	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/files"
	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/store"
	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/vision"
	"github.com/arturoeanton/erp-vision-middleware/internal/handler"
	"github.com/arturoeanton/erp-vision-middleware/internal/metrics"
	"github.com/arturoeanton/erp-vision-middleware/internal/middleware"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
	"github.com/arturoeanton/erp-vision-middleware/internal/service"
	"github.com/arturoeanton/erp-vision-middleware/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting ERP Vision Middleware",
		"port", cfg.Port,
		"vision", cfg.LeoServer,
		"b1", cfg.B1Server,
		"byd", cfg.BYDServer,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	if err := pgStore.EnsureSchema(ctx); err != nil {
		slog.Error("failed to prepare database schema", "error", err)
		os.Exit(1)
	}

	// ── Score cache ──────────────────────────────────────────────────────
	scoreCache, err := cache.New(cache.Config{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Namespace: cfg.CacheNS,
		TTL:       cfg.ScoreCacheTTL,
	})
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer scoreCache.Close()

	// ── Adapters ─────────────────────────────────────────────────────────
	fileStore := files.NewStore(files.Config{
		TempDir:   cfg.TempDir,
		VectorDir: cfg.VectorDir,
		Separator: cfg.FileSep,
		KeepExt:   cfg.KeepExtension,
	}, &http.Client{Timeout: cfg.ERPTimeout})

	leo := vision.NewClient(vision.Config{
		BaseURL:            cfg.LeoServer,
		APIKey:             cfg.LeoAPIKey,
		FeatureEndpoint:    cfg.LeoFeatureEndpoint,
		SimilarityEndpoint: cfg.LeoSimilarityEndpoint,
		ClassifyEndpoint:   cfg.LeoClassifyEndpoint,
		Timeout:            cfg.LeoTimeout,
	})

	b1 := erp.NewB1Adapter(erp.EndpointConfig{
		BaseURL:  cfg.B1Server,
		User:     cfg.B1User,
		Password: cfg.B1Password,
		Company:  cfg.B1Company,
		Timeout:  cfg.ERPTimeout,
	})
	byd := erp.NewByDAdapter(erp.EndpointConfig{
		BaseURL:  cfg.BYDServer,
		User:     cfg.BYDUser,
		Password: cfg.BYDPassword,
		Timeout:  cfg.ERPTimeout,
	}, erp.ByDPaths{Prices: cfg.BYDPricePath})

	registry := port.NewERPRegistry(b1, byd)

	// ── Services ─────────────────────────────────────────────────────────
	catalogService := service.NewCatalogService(registry)
	similarityService := service.NewSimilarityService(fileStore, leo, pgStore, scoreCache, catalogService)
	libraryService := service.NewLibraryService(fileStore, leo, pgStore, catalogService,
		map[string]string{erp.OriginB1: cfg.B1ImageBaseURL})
	priceService := service.NewPriceService(registry, pgStore, pgStore,
		map[string]string{erp.OriginByD: "CIPR_PRODUCT"})

	if cfg.PriceSyncEvery > 0 {
		go priceService.Run(ctx, cfg.PriceSyncEvery)
	}

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // similarity scoring is slow
		BodyLimit:    16 * 1024 * 1024,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))
	app.Use(middleware.MetricsMiddleware(metrics.HTTPRecorder{}))

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		status := fiber.Map{"status": "healthy", "app": cfg.AppName, "version": "1.0.0"}
		if err := pgStore.Ping(c.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		}
		if err := scoreCache.Ping(c.Context()); err != nil {
			status["status"] = "degraded"
			status["cache"] = err.Error()
		}
		return c.JSON(status)
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handler.NewCatalogHandler(catalogService).Register(app)
	handler.NewSimilarityHandler(similarityService, cfg.DefaultSimilar).Register(app)
	jobTracker := handler.NewJobTracker()
	handler.NewLibraryHandler(libraryService, jobTracker).Register(app)
	handler.NewJobsHandler(jobTracker).Register(app)
	handler.NewClassifyHandler(leo).Register(app)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
