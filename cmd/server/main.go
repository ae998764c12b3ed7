// Package main is the entry point for the citizen report server.
// It provides a REST API for traffic violation reports, police review,
// appeals and the reward/penalty settlement ledger.
//
// Architecture:
//   - Every review and appeal decision settles into an append-only ledger
//   - Penalties the citizen has not paid become debts that accrue weekly
//     late fees, driven by a cron job guarded by a cluster-wide lock
//   - Activity logs keep each adjudication step attributable
//   - A Merkle root over the ledger is republished for tamper detection
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aawaaz/citizen-report-server/internal/config"
	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/handlers"
	"github.com/aawaaz/citizen-report-server/internal/locks"
	"github.com/aawaaz/citizen-report-server/internal/logging"
	"github.com/aawaaz/citizen-report-server/internal/middleware"
	"github.com/aawaaz/citizen-report-server/internal/policy"
	"github.com/aawaaz/citizen-report-server/internal/scheduler"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infow("Starting Citizen Report Server",
		"port", cfg.Port,
		"env", cfg.Environment,
		"redis", cfg.RedisURL != "",
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize database and schema
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, sugar); err != nil {
		sugar.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis backs locks and rate limits when configured; otherwise both stay
	// in process, which is only safe for a single instance.
	var (
		rdb     redis.UniversalClient
		locker  locks.Locker
		limiter middleware.Limiter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			sugar.Fatalf("Invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			sugar.Fatalf("Failed to connect to redis: %v", err)
		}
		rdb = client
		locker = locks.NewRedisLocker(client)
		limiter = middleware.NewRedisLimiter(client, cfg.RateLimitRPM)
	} else {
		mem := middleware.NewMemoryLimiter(cfg.RateLimitRPM)
		go mem.StartSweeper(ctx, 10*time.Minute)
		locker = locks.NewLocalLocker()
		limiter = mem
	}

	// Initialize services
	pricing := policy.NewPricing(cfg.DefaultReward, cfg.DefaultPenalty)
	fees := policy.LateFees{WeeklyBPS: cfg.LateFeeWeeklyBPS, MaxWeeks: cfg.LateFeeMaxWeeks}

	activitySvc := services.NewActivityLogService(db, sugar)
	reportSvc := services.NewReportService(db, activitySvc, sugar)
	ledgerSvc := services.NewLedgerService(db, sugar)
	debtSvc := services.NewDebtService(db, ledgerSvc, fees, cfg.DebtDue(), sugar)
	reviewSvc := services.NewReviewService(db, ledgerSvc, debtSvc, activitySvc, pricing, sugar)
	appealSvc := services.NewAppealService(db, ledgerSvc, debtSvc, activitySvc, sugar)
	merkleSvc := services.NewMerkleService(sugar)
	integrityWorker := services.NewIntegrityWorker(merkleSvc, db, sugar)

	// Start background integrity worker (rebuilds Merkle tree periodically)
	go integrityWorker.Start(ctx, time.Duration(cfg.LedgerRebuildInterval)*time.Minute)

	// Debt accrual on cron
	accrual, err := scheduler.New(cfg.AccrualCron, debtSvc, locker, sugar)
	if err != nil {
		sugar.Fatalf("Failed to schedule debt accrual: %v", err)
	}
	accrual.Start()
	defer accrual.Stop()

	// Build router
	router := handlers.NewRouter(handlers.RouterOptions{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.Origins(),
		Limiter:        limiter,
		Logger:         logger,
	}, handlers.Handlers{
		Health:    handlers.NewHealthHandler(db, rdb, sugar),
		Reports:   handlers.NewReportHandler(reportSvc, appealSvc, activitySvc, sugar),
		Police:    handlers.NewPoliceHandler(reportSvc, reviewSvc, appealSvc, sugar),
		Rewards:   handlers.NewRewardsHandler(ledgerSvc, debtSvc, sugar),
		Admin:     handlers.NewAdminHandler(reportSvc, accrual, sugar),
		Integrity: handlers.NewIntegrityHandler(merkleSvc, integrityWorker, sugar),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infof("Server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	sugar.Info("Shutting down gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("Forced shutdown", "error", err)
	}

	sugar.Info("Server stopped")
}
