package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"mediator-backend/internal/api"
	"mediator-backend/internal/auth"
	"mediator-backend/internal/config"
	"mediator-backend/internal/logging"
	"mediator-backend/internal/storage"
	"mediator-backend/internal/store"
)

// multipartOverhead leaves room for form boundaries and fields around the file.
const multipartOverhead = 1 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)
	log.Info().Int("port", cfg.Server.Port).Str("db", cfg.Database.Host).Str("storage", cfg.Storage.Driver).Msg("config loaded")

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// 3. Bootstrap schema
	if err := db.Bootstrap(ctx, logging.Component(log, "store")); err != nil {
		return err
	}
	log.Info().Msg("database ready")

	// 4. Object storage
	files, err := storage.New(ctx, cfg.Storage, logging.Component(log, "storage"))
	if err != nil {
		return fmt.Errorf("create file store: %w", err)
	}
	policy, err := api.NewUploadPolicy(cfg.Storage.MaxFileSize, cfg.Storage.UploadRule)
	if err != nil {
		return err
	}

	// 5. Start pending object sweeper
	sweeper := storage.NewSweeper(files, cfg.Storage.SweepInterval, cfg.Storage.PendingMaxAge, log)
	sweeper.Start()
	defer sweeper.Stop()

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          api.ErrorHandler(logging.Component(log, "http")),
		BodyLimit:             int(policy.MaxSize()) + multipartOverhead,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Auth routes
	authHandler := auth.NewAuthHandler(db.Users(), cfg.JWTSecret, cfg.AccessTokenTTL, logging.Component(log, "auth"))
	auth.RegisterAuthRoutes(app, authHandler)

	// 8. Document and object routes
	handler := api.NewHandler(api.HandlerConfig{
		Files:    files,
		Docs:     db.Documents(),
		Policy:   policy,
		Sweeper:  sweeper,
		CacheTTL: cfg.Storage.CacheTTL,
		Log:      logging.Component(log, "api"),
	})
	api.RegisterRoutes(app, handler, api.Middleware{
		Required: auth.Required(cfg.JWTSecret),
		Optional: auth.Optional(cfg.JWTSecret),
		Admin:    auth.RequireAdmin(),
	})

	// 9. Start server
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info().Str("addr", addr).Msg("starting server")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
