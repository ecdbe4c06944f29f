package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bilgisen/shiurim/internal/api"
	"github.com/bilgisen/shiurim/internal/cache"
	"github.com/bilgisen/shiurim/internal/config"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/middleware"
	"github.com/bilgisen/shiurim/internal/session"
	"github.com/bilgisen/shiurim/internal/storage"
	"github.com/bilgisen/shiurim/internal/store"
	"github.com/bilgisen/shiurim/internal/store/filestore"
	"github.com/bilgisen/shiurim/internal/store/postgres"
	"github.com/bilgisen/shiurim/internal/store/supabase"
)

func main() {
	// Load and validate configuration
	cfg := config.Load()

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: cfg.LogOutput,
		Pretty: !cfg.IsProduction(),
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Str("store", cfg.StoreDriver).Msg("Starting application...")

	// Cache: Redis when configured, in-process otherwise
	var redisClient cache.Cache
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis client")
		}
		redisClient = rc
	} else {
		log.Warn().Msg("REDIS_URL not set, using in-process cache")
		redisClient = cache.NewMockRedisClient()
	}
	defer func() {
		log.Info().Msg("Closing cache client...")
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing cache client")
		}
	}()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open content store")
	}
	defer st.Close()

	deps := api.Deps{
		Config:   cfg,
		Store:    st,
		Cache:    redisClient,
		Sessions: session.New(cfg, redisClient),
	}

	// Missing storage settings are reported by the upload endpoint, not here.
	r2, err := storage.NewR2(context.Background(), cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Direct uploads are disabled")
		deps.IssuerErr = err
	} else {
		deps.Issuer = r2
		if cfg.VerifyUploads {
			deps.Verifier = r2
		}
	}

	// Create Fiber app with custom config
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 << 20,
		ErrorHandler: middleware.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.RequestLogger())

	// Setup API routes
	api.SetupRoutes(app, api.NewHandlers(deps))

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSupabase:
		return supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.HTTPTimeout), nil
	case config.DriverPostgres:
		if cfg.DBMigrate {
			if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return postgres.Connect(ctx, cfg.DatabaseURL)
	case config.DriverFile:
		return filestore.NewStorage(cfg.DataPath)
	}
	return nil, errors.New("unknown store driver " + cfg.StoreDriver)
}
