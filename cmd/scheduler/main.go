package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segyhp/payroll-loans/internal/auth"
	"github.com/segyhp/payroll-loans/internal/cache"
	"github.com/segyhp/payroll-loans/internal/config"
	"github.com/segyhp/payroll-loans/internal/database"
	"github.com/segyhp/payroll-loans/internal/domain"
	"github.com/segyhp/payroll-loans/internal/logger"
	"github.com/segyhp/payroll-loans/internal/repository"
	"github.com/segyhp/payroll-loans/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// settlementTimeout bounds a single payroll run.
const settlementTimeout = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting payroll settlement scheduler...")

	db, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("Failed to initialize database", err)
		os.Exit(1)
	}
	defer db.Close()

	// Settlement mutates loans, so cached detail documents must be invalidated
	// through the same cache the server reads.
	var loanCache service.LoanCache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		loanCache = cache.NewLoanCache(redisClient, cfg.Redis.LoanTTL)
	}

	loanService := service.NewLoanService(
		repository.NewLoanRepository(db),
		repository.NewEmployeeRepository(db),
		loanCache,
		service.SettingsFromConfig(cfg),
	)

	loc := cfg.GetSchedulerLocation()
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))

	if err := setupCronJobs(c, cfg, loanService, loc); err != nil {
		logger.Error("Error scheduling payroll settlement job", err)
		os.Exit(1)
	}

	c.Start()
	logger.Info("Scheduler started successfully",
		slog.String("cron", cfg.Scheduler.PayrollCron),
		slog.String("timezone", loc.String()),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	<-c.Stop().Done()
	logger.Info("Scheduler stopped")
}

func setupCronJobs(c *cron.Cron, cfg *config.Config, loanService *service.LoanService, loc *time.Location) error {
	_, err := c.AddFunc(cfg.Scheduler.PayrollCron, func() {
		runPayrollSettlement(loanService, loc)
	})
	return err
}

// runPayrollSettlement settles every installment due up to today in the
// payroll timezone, acting as the payroll system.
func runPayrollSettlement(loanService *service.LoanService, loc *time.Location) {
	ctx, cancel := context.WithTimeout(context.Background(), settlementTimeout)
	defer cancel()

	ctx = logger.WithRequestID(ctx, uuid.NewString())
	ctx = auth.WithActor(ctx, auth.SystemActor("payroll-run"))

	runDate := domain.NewDate(time.Now().In(loc))
	logger.CtxInfo(ctx, "Running payroll settlement", slog.String("run_date", runDate.String()))

	if _, err := loanService.SettleDueInstallments(ctx, runDate); err != nil {
		logger.CtxError(ctx, "Payroll settlement failed", err, slog.String("run_date", runDate.String()))
	}
}
