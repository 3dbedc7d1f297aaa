package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/icanedev/smartcane-api/internal/auth"
	"github.com/icanedev/smartcane-api/internal/background"
	"github.com/icanedev/smartcane-api/internal/config"
	"github.com/icanedev/smartcane-api/internal/database"
	"github.com/icanedev/smartcane-api/internal/handlers"
	"github.com/icanedev/smartcane-api/internal/middleware"
	"github.com/icanedev/smartcane-api/internal/repositories"
	"github.com/icanedev/smartcane-api/internal/routes"
	"github.com/icanedev/smartcane-api/internal/services"
	pkghttp "github.com/icanedev/smartcane-api/pkg/http"
	pkglogger "github.com/icanedev/smartcane-api/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	guardianRepo := repositories.NewGuardianRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	otpRepo := repositories.NewOTPRepository(db)
	deviceRepo := repositories.NewDeviceGuardianRepository(db)

	// Token manager and audit logging
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	auditLogger := pkglogger.NewAuditLogger(logger)

	// AWS SES email dispatch
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.SenderName,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Services
	lockoutService := services.NewLockoutService(loginAttemptRepo, cfg.Lockout, logger)
	otpService := services.NewOTPService(otpRepo, emailService, cfg.OTP, logger, auditLogger)
	authService := services.NewAuthService(guardianRepo, deviceRepo, lockoutService, otpService, tokenManager, logger, auditLogger)

	// Handlers
	cookieConfig := auth.NewCookieConfig(cfg.Server.Env)
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, tokenManager, cookieConfig, ipConfig)

	// Background pruning of the login attempt ledger
	cleanupManager := background.NewCleanupManager(lockoutService, logger, cfg.Lockout.CleanupInterval)

	// Router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(middleware.NewCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	router.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(r, authHandler, tokenManager)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

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
