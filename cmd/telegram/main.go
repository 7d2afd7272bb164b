package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cecibot/cecibot/internal/audit"
	"github.com/cecibot/cecibot/internal/bus"
	"github.com/cecibot/cecibot/internal/config"
	"github.com/cecibot/cecibot/internal/frontend/telegram"
	"github.com/cecibot/cecibot/internal/ratelimit"
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
	if cfg.TelegramToken == "" {
		slog.Error("CECIBOT_TELEGRAM_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := bus.New(cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	auditLog, err := audit.New(cfg.ComponentAuditDir("telegram"), cfg.AuditFlushThreshold)
	if err != nil {
		slog.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	limiter := ratelimit.New(queue.Client(), cfg.TelegramCoolDown, cfg.TelegramMaxAttempts)
	bot := telegram.NewAPIBot(cfg.TelegramToken)
	frontend := telegram.New(bot, queue, limiter, auditLog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return frontend.RunIngress(gctx) })
	g.Go(func() error { return frontend.RunEgress(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("telegram frontend failed", "error", err)
		os.Exit(1)
	}

	slog.Info("telegram frontend stopped")
}
