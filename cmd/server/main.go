// Package main is the entry point for the Bastion portfolio risk
// engine. It watches a live portfolio, raises threshold alerts,
// executes automatic mitigations and serves the risk API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aristath/bastion/internal/clients/portfolio"
	"github.com/aristath/bastion/internal/clients/trading"
	"github.com/aristath/bastion/internal/config"
	"github.com/aristath/bastion/internal/database"
	"github.com/aristath/bastion/internal/events"
	"github.com/aristath/bastion/internal/modules/adaptive"
	"github.com/aristath/bastion/internal/modules/alerts"
	"github.com/aristath/bastion/internal/modules/metrics"
	"github.com/aristath/bastion/internal/modules/mitigation"
	"github.com/aristath/bastion/internal/modules/stress"
	"github.com/aristath/bastion/internal/monitor"
	"github.com/aristath/bastion/internal/reliability"
	"github.com/aristath/bastion/internal/server"
	"github.com/aristath/bastion/internal/storage"
	"github.com/aristath/bastion/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Bastion risk engine")

	// Single risk database: tick history, alerts, audit logs, prices.
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "risk.db"),
		Profile: database.ProfileAudit,
		Name:    "risk",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open risk database")
	}
	defer db.Close()

	if err := storage.Migrate(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate risk database")
	}

	metricsRepo := storage.NewMetricsRepository(db.Conn(), log)
	alertRepo := storage.NewAlertRepository(db.Conn(), log)
	thresholdRepo := storage.NewThresholdRepository(db.Conn(), log)
	stressRepo := storage.NewStressRepository(db.Conn(), log)
	priceRepo := storage.NewPriceRepository(db.Conn(), log)
	stateStore := storage.NewStateStore(filepath.Join(cfg.DataDir, "engine-state.msgpack"), log)

	bus := events.NewBus(log)

	portfolioClient := portfolio.NewClient(cfg.PortfolioServiceURL, log)
	tradingClient := trading.NewClient(cfg.TradingServiceURL, log)

	stats := metrics.NewHistoryStats(priceRepo, valueSource{metricsRepo})
	calc := metrics.NewCalculator(stats, cfg.MonteCarloTrials)
	posCalc := metrics.NewPositionRiskCalculator(stats)
	evaluator := alerts.NewEvaluator(log)
	executor := mitigation.NewExecutor(log, tradingClient, stats)
	stressEngine := stress.NewEngine(log, stats)
	optimizer := adaptive.NewOptimizer(log)

	engine, err := monitor.NewEngine(log, monitor.Config{
		Interval:           cfg.MonitorInterval,
		OptimizeEveryTicks: uint64(cfg.OptimizeEveryTicks),
		MetricsHistorySize: cfg.MetricsHistorySize,
		AlertHistorySize:   cfg.AlertHistorySize,
		StressHistorySize:  cfg.StressHistorySize,
	}, monitor.Deps{
		Portfolio:     portfolioClient,
		Stats:         stats,
		Calc:          calc,
		PosCalc:       posCalc,
		Evaluator:     evaluator,
		Executor:      executor,
		Stress:        stressEngine,
		Optimizer:     optimizer,
		Bus:           bus,
		MetricsRepo:   metricsRepo,
		AlertRepo:     alertRepo,
		ThresholdRepo: thresholdRepo,
		StressRepo:    stressRepo,
		PriceRepo:     priceRepo,
		StateStore:    stateStore,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize monitoring engine")
	}

	// Nightly off-site backups, when configured.
	var scheduler *cron.Cron
	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage client")
		}
		backupService := reliability.NewBackupService(db, s3Client, cfg.DataDir, cfg.Backup.Retain, log)

		scheduler = cron.New()
		_, err = scheduler.AddFunc(cfg.Backup.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := backupService.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled backup failed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Backup.Schedule).Msg("Invalid backup schedule")
		}
		scheduler.Start()
		log.Info().Str("schedule", cfg.Backup.Schedule).Msg("Backup scheduler started")
	}

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Engine:  engine,
		Bus:     bus,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	engine.Start()
	log.Info().Int("port", cfg.Port).Msg("Bastion started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	engine.Stop()
	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}

// valueSource adapts the metrics repository to the symbol statistics'
// portfolio-value feed, ignoring read errors: a failed read just means
// fallback statistics this round.
type valueSource struct {
	repo *storage.MetricsRepository
}

func (v valueSource) RecentValues(limit int) []float64 {
	values, err := v.repo.RecentValues(limit)
	if err != nil {
		return nil
	}
	return values
}
