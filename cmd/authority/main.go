package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/otpflow/internal/auth"
	"github.com/BradenHooton/otpflow/internal/background"
	"github.com/BradenHooton/otpflow/internal/clock"
	"github.com/BradenHooton/otpflow/internal/config"
	"github.com/BradenHooton/otpflow/internal/handlers"
	"github.com/BradenHooton/otpflow/internal/repositories"
	"github.com/BradenHooton/otpflow/internal/routes"
	"github.com/BradenHooton/otpflow/internal/services"
	pkgauth "github.com/BradenHooton/otpflow/pkg/auth"
	pkghttp "github.com/BradenHooton/otpflow/pkg/http"
	pkglogger "github.com/BradenHooton/otpflow/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.LoadAuthority()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	clk := clock.New()

	// In-memory storage
	accountRepo := repositories.NewAccountRepository()
	challengeRepo := repositories.NewChallengeRepository()

	// Token and passcode managers
	tokenManager := auth.NewTokenManager(cfg.OTP.CorrelationTokenSecret, cfg.OTP.CorrelationTokenTTL, clk)
	passcodeManager := auth.NewPasscodeManager("otpflow", cfg.OTP.Digits)

	// Email delivery: AWS SES when a region is configured, the log mailer otherwise
	var emailService services.EmailService
	if cfg.Email.AWSRegion != "" {
		sesService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.From, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = sesService
	} else {
		if cfg.Server.Env == "production" {
			logger.Error("AWS_REGION is required in production")
			os.Exit(1)
		}
		logger.Warn("AWS_REGION not set, OTP codes will be written to the log")
		emailService = services.NewLogEmailService(logger)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	otpService := services.NewOTPService(
		accountRepo,
		challengeRepo,
		tokenManager,
		passcodeManager,
		emailService,
		clk,
		services.OTPServiceConfig{
			SignupExpiry:   cfg.OTP.SignupExpiry,
			ResetExpiry:    cfg.OTP.ResetExpiry,
			TokenTTL:       cfg.OTP.CorrelationTokenTTL,
			AccessTokenTTL: cfg.OTP.AccessTokenTTL,
			MaxAttempts:    cfg.OTP.MaxAttempts,
			BcryptCost:     pkgauth.BcryptCost,
		},
		logger,
		auditLogger,
	)

	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	authHandler := handlers.NewAuthHandler(otpService, ipConfig, logger).
		WithFailureDelay(auth.NewTimingDelay(auth.TimingConfig{
			BaseDelay:   cfg.OTP.FailureDelay,
			RandomDelay: cfg.OTP.FailureJitter,
		}))

	router := routes.NewRouter(authHandler, routes.Options{
		Env:                cfg.Server.Env,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		IPConfig:           ipConfig,
		RateLimitPerMinute: cfg.Server.AuthRateLimitPerMinute,
		RequestTimeout:     cfg.Server.WriteTimeout,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(otpService, logger, cfg.OTP.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
