package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mohammadanang/video-upload-api/config"
	"github.com/mohammadanang/video-upload-api/handler"
	"github.com/mohammadanang/video-upload-api/storage"
)

func newLogger(w io.Writer, lvl string) log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(w))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var allow level.Option
	switch lvl {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	return level.NewFilter(l, allow)
}

func newApp(cfg config.Config, l log.Logger, accessLog io.Writer, h handler.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.MaxUploadBytes,
		ErrorHandler:          handler.ErrorHandler(l),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${method} | ${path} | ${latency}\n",
		Output: accessLog,
	}))
	if cfg.RateLimitMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Expiration: cfg.RateLimitWindow,
			Max:        cfg.RateLimitMax,
		}))
	}

	app.Get("/health", h.Health)
	app.Post("/upload", h.UploadVideo)
	app.All("/upload", h.MethodNotAllowed)

	return app
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		level.Error(newLogger(os.Stderr, "info")).Log("msg", "invalid configuration", "err", err)
		os.Exit(1)
	}
	l := newLogger(os.Stderr, cfg.LogLevel)

	store, err := storage.NewDiskStore(l, cfg.UploadDir, cfg.UploadFilename, cfg.Mode)
	if err != nil {
		level.Error(l).Log("msg", "failed to prepare storage", "err", err)
		os.Exit(1)
	}

	app := newApp(cfg, l, os.Stdout, handler.NewAPIHandler(l, store))

	go func() {
		level.Info(l).Log("msg", "server listening", "addr", cfg.Addr(), "destination", store.Path(), "mode", cfg.Mode)
		if err := app.Listen(cfg.Addr()); err != nil {
			level.Error(l).Log("msg", "listen failed", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	level.Info(l).Log("msg", "shutdown signal received")
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		level.Error(l).Log("msg", "graceful shutdown failed", "err", err)
		os.Exit(1)
	}
	level.Info(l).Log("msg", "server stopped")
}
