package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"creatorconnect/account"
	"creatorconnect/campaign"
	"creatorconnect/config"
	"creatorconnect/db"
	"creatorconnect/invitation"
	"creatorconnect/notification"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("bootstrap database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dispatcher := notification.NewDispatcher(notification.NewStore(pool), logger).
		WithEmail(notification.NewLogSender(logger))
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("parse redis url", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		dispatcher = dispatcher.WithPublisher(notification.NewRedisPublisher(rdb))
	}

	// This process runs the background side of the lifecycle engine: the
	// periodic progress sweep and invitation expiry. The command surface is
	// served by the embedding transport, which builds its own services over
	// the same packages.
	accountRepo := account.NewRepository(pool)
	campaignRepo := campaign.NewRepository(pool)
	engine := campaign.NewEngine(pool, campaignRepo).
		WithNotifier(dispatcher).
		WithSweepConcurrency(cfg.SweepConcurrency)

	invitationSvc := invitation.NewService(pool, invitation.NewRepository(pool), campaignRepo, accountRepo, engine).
		WithNotifier(dispatcher).
		WithTTL(cfg.InvitationTTL)

	logger.Info("scheduler starting",
		"sweep_interval", cfg.SweepInterval.String(),
		"sweep_concurrency", cfg.SweepConcurrency,
		"invitation_ttl", cfg.InvitationTTL.String(),
	)

	runScheduler(ctx, logger, cfg.SweepInterval, engine, invitationSvc)
	logger.Info("shutdown complete")
}

// runScheduler drives the periodic progress sweep and invitation expiry until
// the context is cancelled.
func runScheduler(ctx context.Context, logger *slog.Logger, interval time.Duration, engine *campaign.Engine, invitations *invitation.Service) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := engine.Sweep(ctx)
			if err != nil {
				logger.Error("progress sweep", "error", err)
			} else {
				logger.Info("progress sweep",
					"scanned", report.Scanned,
					"recomputed", report.Recomputed,
					"failed", len(report.Errors),
				)
				for _, se := range report.Errors {
					logger.Warn("sweep item failed", "campaign_id", se.CampaignID, "error", se.Err)
				}
			}

			expired, err := invitations.ExpireSweep(ctx)
			if err != nil {
				logger.Error("invitation expiry sweep", "error", err)
			} else if expired > 0 {
				logger.Info("invitation expiry sweep", "expired", expired)
			}
		}
	}
}
