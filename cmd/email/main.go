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
	"github.com/cecibot/cecibot/internal/frontend/email"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := bus.New(cfg.RedisAddr(), cfg.RedisPassword)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	auditLog, err := audit.New(cfg.ComponentAuditDir("email"), cfg.AuditFlushThreshold)
	if err != nil {
		slog.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	limiter := ratelimit.New(queue.Client(), cfg.EmailCoolDown, cfg.EmailMaxAttempts)
	source := email.NewQueueSource(queue.Client(), cfg.EmailInboundList)
	sender := email.NewSMTPSender(cfg.SMTPAddr(), cfg.SMTPFrom)
	frontend := email.New(source, sender, queue, limiter, auditLog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return frontend.RunIngress(gctx) })
	g.Go(func() error { return frontend.RunEgress(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("email frontend failed", "error", err)
		os.Exit(1)
	}

	slog.Info("email frontend stopped")
}
