package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sourpie/gitknow/internal/app"
	"github.com/sourpie/gitknow/internal/handler"
	"github.com/sourpie/gitknow/internal/mcp"
	"github.com/sourpie/gitknow/internal/middleware"
	"github.com/sourpie/gitknow/pkg/config"
)

const jobTimeout = 30 * time.Minute

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load()

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()
	logger := cfg.Logger()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting gitknow",
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"ai_provider", cfg.AIProvider,
		"repo_source", cfg.RepoSource,
		"mcp_enabled", cfg.MCPEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Adapters & services ──────────────────────────────────────────────
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	// ── Fiber App ────────────────────────────────────────────────────────
	server := fiber.New(fiber.Config{
		AppName:     cfg.AppName,
		ReadTimeout: 30 * time.Second,
	})

	server.Use(recover.New())
	server.Use(fiberlogger.New())
	server.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))
	server.Use(middleware.RequestMetrics())

	// ── Public Routes ────────────────────────────────────────────────────
	server.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"app":    cfg.AppName,
			"model":  application.AI.ModelName(),
		})
	})
	if cfg.MetricsEnabled {
		server.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	// ── Protected Routes ─────────────────────────────────────────────────
	api := server.Group("/api/v1", middleware.JWTMiddleware(application.JWTConfig()))
	handler.RegisterAPI(api, application.Projects, handler.NewJobTracker(jobTimeout), cfg.ModelTimeout)

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(application.Projects, application.JWTConfig(), cfg.MCPPort, logger)
		go func() {
			if err := mcpServer.Start(ctx); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Commit poller ────────────────────────────────────────────────────
	go application.Poller.Run(ctx)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("fiber listening", "port", cfg.Port)
	if err := server.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
