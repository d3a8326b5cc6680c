package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segyhp/payroll-loans/internal/cache"
	"github.com/segyhp/payroll-loans/internal/config"
	"github.com/segyhp/payroll-loans/internal/database"
	"github.com/segyhp/payroll-loans/internal/handler"
	"github.com/segyhp/payroll-loans/internal/logger"
	"github.com/segyhp/payroll-loans/internal/repository"
	"github.com/segyhp/payroll-loans/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.IsProduction() && !cfg.Auth.Enabled {
		logger.Warn("Authentication is disabled in production", slog.String("env", cfg.Server.Env))
	}

	// Initialize database
	db, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("Failed to initialize database", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Redis
	var (
		redisClient *redis.Client
		loanCache   service.LoanCache
	)
	if cfg.Redis.Enabled {
		redisClient = initRedis(cfg)
		defer redisClient.Close()
		loanCache = cache.NewLoanCache(redisClient, cfg.Redis.LoanTTL)
	}

	// Initialize repositories
	loanRepo := repository.NewLoanRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)

	// Initialize service
	loanService := service.NewLoanService(loanRepo, employeeRepo, loanCache, service.SettingsFromConfig(cfg))
	loanHandler := handler.NewLoanHandler(loanService)
	healthHandler := handler.NewHealthHandler(db, redisClient, cfg.GetHealthTimeout())

	opts := handler.RouterOptions{AllowedOrigins: cfg.GetCORSAllowedOrigins()}
	if cfg.Auth.Enabled {
		opts.JWTSecret = []byte(cfg.Auth.JWTSecret)
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler.NewRouter(loanHandler, healthHandler, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting",
			slog.String("addr", server.Addr),
			slog.String("env", cfg.Server.Env),
			slog.String("driver", cfg.Database.Driver),
			slog.Bool("cache", cfg.Redis.Enabled),
			slog.Bool("auth", cfg.Auth.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}

	logger.Info("Server exited")
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
