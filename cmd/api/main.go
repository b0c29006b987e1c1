package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mkoskinen/hslproxy/internal/adapters/hsl"
	"github.com/mkoskinen/hslproxy/internal/adapters/http"
	natsadapter "github.com/mkoskinen/hslproxy/internal/adapters/nats"
	"github.com/mkoskinen/hslproxy/internal/adapters/valkey"
	"github.com/mkoskinen/hslproxy/internal/core/ports"
	"github.com/mkoskinen/hslproxy/internal/core/usecases"
	"github.com/mkoskinen/hslproxy/internal/pkg/config"
	"github.com/mkoskinen/hslproxy/internal/pkg/logging"
	"github.com/mkoskinen/hslproxy/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("hslproxy")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging; HSLPROXY_LOG_LEVEL overrides the config file.
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Cache
	var cache *valkey.Cache
	if cfg.Cache.Addr != "" {
		cache, err = valkey.New(cfg.Cache.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// NATS
	var pub *natsadapter.Publisher
	if cfg.NATS.URL != "" {
		pub, err = natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	// Raw NATS connection for the WebSocket relay
	deps := &http.Dependencies{Cache: cacheOrNil(cache)}
	if cfg.NATS.URL != "" {
		natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
		} else {
			deps.NATS = natsConn
		}
	}

	// Upstream client and services
	source := hsl.New(cfg.HSL.URL, time.Duration(cfg.HSL.Timeout)*time.Second)
	boardSvc := usecases.NewDepartureService(source, cacheOrNil(cache), cfg.Cache.TTL)
	deps.Boards = boardSvc

	// Background board watcher for configured stops
	if pub != nil && len(cfg.Watch.Stops) > 0 {
		watcher := usecases.NewBoardWatcher(boardSvc, pub, cfg.Watch.Stops, 5,
			time.Duration(cfg.Watch.Interval)*time.Second)
		go watcher.Run(ctx)
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    256 * 1024, // GraphQL queries only; requests are tiny
		AppName:      "HSL Departure Proxy",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// cacheOrNil avoids handing the service a non-nil interface wrapping a
// nil *valkey.Cache.
func cacheOrNil(c *valkey.Cache) ports.CacheService {
	if c == nil {
		return nil
	}
	return c
}
