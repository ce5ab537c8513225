package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xui_reseller_bot/internal/config"
	"xui_reseller_bot/internal/feature/reseller"
	"xui_reseller_bot/internal/feature/user"
	"xui_reseller_bot/internal/health"
	"xui_reseller_bot/internal/logging"
	"xui_reseller_bot/internal/panel"
	"xui_reseller_bot/internal/report"
	"xui_reseller_bot/internal/scheduler"
	"xui_reseller_bot/internal/store"
	"xui_reseller_bot/internal/telegram"
)

const (
	dbConnectTimeout        = 10 * time.Second
	schemaTimeout           = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	healthShutdownTimeout   = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":   "startup",
		"db_path": cfg.DBPath,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	dbManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("database open error")
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "db_open").Info("opened local database")

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), schemaTimeout)
	if err := dbManager.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		logger.WithError(err).Error("database schema error")
		fmt.Fprintf(os.Stderr, "database schema error: %v\n", err)
		os.Exit(1)
	}
	cancelSchema()

	logger.WithField("event", "db_schema").Info("ensured database schema")

	registry := store.NewRegistry(dbManager, logger)
	history := store.NewHistory(dbManager)
	failureLog := logging.NewFailureLog(cfg.FailureLogPath)

	statsCtx, cancelStats := context.WithTimeout(context.Background(), schemaTimeout)
	if users, resellers, err := registry.Counts(statsCtx); err != nil {
		logger.WithError(err).Warn("failed to read registry stats")
	} else {
		logger.WithFields(logging.Fields{
			"event":     "registry_stats",
			"users":     users,
			"resellers": resellers,
		}).Info("registry loaded")
	}
	cancelStats()

	session, err := panel.NewSession(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("panel session setup error")
		fmt.Fprintf(os.Stderr, "panel session setup error: %v\n", err)
		os.Exit(1)
	}

	apiClient := panel.NewAPIClient(session, logger)
	generator := report.NewGenerator(apiClient, failureLog, logger)

	userRegistrar := user.NewRegistrar(registry, logger)
	resellerRegistrar := reseller.NewRegistrar(registry, logger)

	handlers := telegram.NewHandlers(cfg, userRegistrar, resellerRegistrar, generator, failureLog, logger)

	tgClient, err := telegram.NewClient(cfg, handlers, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	notifier, err := telegram.NewNotifier(tgClient.API(), failureLog, logger)
	if err != nil {
		logger.WithError(err).Error("notifier setup error")
		fmt.Fprintf(os.Stderr, "notifier setup error: %v\n", err)
		os.Exit(1)
	}

	jobs, err := scheduler.New(cfg, resellerRegistrar, apiClient, notifier, history, failureLog, logger)
	if err != nil {
		logger.WithError(err).Error("scheduler setup error")
		fmt.Fprintf(os.Stderr, "scheduler setup error: %v\n", err)
		os.Exit(1)
	}

	healthServer := health.NewServer(cfg.HTTPPort, dbManager, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workCtx, cancelWork := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(workCtx)
		close(tgDone)
	}()

	go jobs.Run(workCtx)

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelWork()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	if err := dbManager.Close(); err != nil {
		logger.WithError(err).Error("database close error")
	} else {
		logger.WithField("event", "db_close").Info("database closed")
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
