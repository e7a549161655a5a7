package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/princeprakhar/movie-watchlist/internal/api/routes"
	"github.com/princeprakhar/movie-watchlist/internal/authz"
	"github.com/princeprakhar/movie-watchlist/internal/config"
	"github.com/princeprakhar/movie-watchlist/internal/database"
	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/throttle"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	logger.Init(cfg.Environment, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration: ", err)
	}

	db, err := database.Init(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		logger.Fatal("Failed to initialize database: ", err)
	}

	enforcer, err := authz.New()
	if err != nil {
		logger.Fatal("Failed to load authorization policy: ", err)
	}

	var emails services.EmailChecker
	if cfg.AbstractEmailAPIKey != "" {
		emails = services.NewEmailVerifier(cfg.AbstractEmailAPIKey, cfg.AbstractEmailAPIURL)
	}
	var mailer services.Mailer
	if cfg.SMTPEnabled() {
		mailer = services.NewEmailService(cfg)
	}
	var posters services.PosterUploader
	if cfg.S3Enabled() {
		s3Service, err := services.NewS3Service(cfg.S3Region, cfg.S3BucketName, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			logger.Fatal("Failed to initialize poster storage: ", err)
		}
		posters = s3Service
	}

	authService := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL, emails, mailer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Fatal("Failed to ensure administrator account: ", err)
	}

	store := throttle.NewStore(db, time.Now)
	go store.RunJanitor(ctx, 10*time.Minute, func(err error) {
		logger.WithError(err).Warn("Failed to purge expired throttle counters")
	})

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	err = routes.SetupRoutes(router, routes.Dependencies{
		DB:            db,
		Config:        cfg,
		Enforcer:      enforcer,
		Auth:          authService,
		ThrottleStore: store,
		Clock:         store.Now,
		Posters:       posters,
	})
	if err != nil {
		logger.Fatal("Failed to set up routes: ", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: ", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}
