package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helmarr/helmarr/internal/api"
	"github.com/helmarr/helmarr/internal/arr"
	"github.com/helmarr/helmarr/internal/config"
	"github.com/helmarr/helmarr/internal/database"
	"github.com/helmarr/helmarr/internal/gate"
	"github.com/helmarr/helmarr/internal/health"
	"github.com/helmarr/helmarr/internal/logger"
	"github.com/helmarr/helmarr/internal/notification"
	"github.com/helmarr/helmarr/internal/plex"
	"github.com/helmarr/helmarr/internal/queue"
	"github.com/helmarr/helmarr/internal/rules"
	"github.com/helmarr/helmarr/internal/scheduler"
	"github.com/helmarr/helmarr/internal/startup"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/sync"
	"github.com/helmarr/helmarr/internal/watchlist"
	"github.com/helmarr/helmarr/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting Helmarr")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	st := store.New(db.Conn())
	ctx := context.Background()

	hub := websocket.NewHub()
	go hub.Run()

	healthService := health.NewService(log.Logger)
	healthService.SetBroadcaster(hub)

	notifService := notification.NewService(st, log.Logger)
	healthService.SetNotifier(notifService)

	registry := arr.NewRegistry(15*time.Second, log.Logger)
	retryCfg := startup.DefaultRetryConfig()
	if err := startup.WithRetry(ctx, "instance registry load", retryCfg, func() error {
		return registry.Reload(ctx, st)
	}, log.Logger); err != nil {
		log.Warn().Err(err).Msg("instance registry unavailable at startup, dispatch deferred until it loads")
	}

	dispatcher := arr.NewDispatcher(registry, log.Logger)
	g := gate.New(st, dispatcher, notification.NewGateEvents(notifService), gate.Config{
		ExpireAfter:        cfg.Approvals.ExpireAfter,
		AutoApproveExpired: cfg.Approvals.AutoApproveExpired,
		Retention:          cfg.Approvals.Retention,
	}, log.Logger)

	ruleService := rules.NewService(st, log.Logger)
	if cfg.Rules.SeedPath != "" {
		if err := ruleService.SeedFromFile(ctx, cfg.Rules.SeedPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.Rules.SeedPath).Msg("failed to seed routing rules")
		}
	}

	source, err := plex.NewClient(plex.ClientConfig{
		URL:     cfg.Plex.URL,
		Timeout: cfg.Plex.Timeout,
		Logger:  log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create watchlist client")
	}

	orchestrator := sync.New(sync.Config{
		Store:  st,
		Source: source,
		PollerConfig: watchlist.PollerConfig{
			Interval:          cfg.Sync.Interval,
			FallbackInterval:  cfg.Sync.FallbackInterval,
			RateLimitCooldown: cfg.Sync.RateLimitCooldown,
			FailureThreshold:  cfg.Sync.FailureThreshold,
		},
		Rules:         ruleService,
		Gate:          g,
		Registry:      registry,
		Queue:         queue.New(cfg.Queue.MaxRetries, log.Logger),
		HealthService: healthService,
		Hub:           hub,
		Logger:        log.Logger,
	})
	if err := orchestrator.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sync pipeline")
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	registerTasks(sched, g, cfg, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	server := api.NewServer(cfg, api.Services{
		Store:         st,
		Orchestrator:  orchestrator,
		Gate:          g,
		Registry:      registry,
		Health:        healthService,
		Notifications: notifService,
		Scheduler:     sched,
		Hub:           hub,
	}, log.Logger)

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("scheduler shutdown failed")
	}
	orchestrator.Stop()

	log.Info().Msg("shutdown complete")
}

// registerTasks wires the periodic maintenance jobs.
func registerTasks(sched *scheduler.Scheduler, g *gate.Gate, cfg *config.Config, log *logger.Logger) {
	err := sched.RegisterTask(scheduler.TaskConfig{
		ID:   "approval-sweep",
		Name: "Approval Sweep",
		Cron: cfg.Approvals.SweepCron,
		Func: func(ctx context.Context) error {
			result, err := g.Sweep(ctx)
			if err != nil {
				return err
			}
			log.Info().
				Int("expired", result.Expired).
				Int("autoApproved", result.AutoApproved).
				Int64("purged", result.Purged).
				Msg("approval sweep finished")
			return nil
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to register approval sweep task")
	}

	err = sched.RegisterTask(scheduler.TaskConfig{
		ID:   "quota-usage-purge",
		Name: "Quota Usage Purge",
		Cron: "0 4 * * *",
		Func: func(ctx context.Context) error {
			// Keep twice the longest quota window so rolling weekly
			// counts are never short.
			n, err := g.PurgeQuotaUsage(ctx, 62*24*time.Hour)
			if err != nil {
				return err
			}
			log.Info().Int64("purged", n).Msg("quota usage purge finished")
			return nil
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to register quota usage purge task")
	}
}
