package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cecibot/cecibot/internal/bus"
	"github.com/cecibot/cecibot/internal/config"
	"github.com/cecibot/cecibot/internal/fetch"
	"github.com/cecibot/cecibot/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"redis", cfg.RedisAddr(),
		"download_path", cfg.DownloadPath,
		"max_file_size", cfg.MaxFileSize,
		"nav_timeout", cfg.NavTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := bus.New(cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	// The browser outlives ctx so the in-flight request can finish during
	// shutdown; it is closed explicitly below.
	browser, err := fetch.NewBrowser(context.Background(), cfg.DownloadPath, cfg.NavTimeout, cfg.PageWidthPx)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer browser.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	server := &http.Server{
		Addr:         cfg.MetricsAddr(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("metrics listening", "addr", cfg.MetricsAddr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	go metrics.SampleQueueDepth(ctx, 5*time.Second, queue.RequestQueueDepth)

	worker := fetch.NewWorker(queue, browser, cfg.DownloadPath, cfg.MaxFileSize)
	if err := worker.Run(ctx); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server forced shutdown", "error", err)
	}

	slog.Info("worker stopped")
}
