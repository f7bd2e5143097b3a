package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andrewpaige1/flashd-api/auth"
	"github.com/andrewpaige1/flashd-api/config"
	"github.com/andrewpaige1/flashd-api/handlers"
	"github.com/andrewpaige1/flashd-api/logger"
	"github.com/andrewpaige1/flashd-api/middleware"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.IsDevelopment())

	db, err := config.Connect(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get database handle")
	}
	defer sqlDB.Close()

	authService := auth.NewService(db, auth.Options{
		Secret:            cfg.Auth.Secret,
		BaseURL:           cfg.Auth.BaseURL,
		SessionTTL:        cfg.Auth.SessionTTL,
		SessionUpdateAge:  cfg.Auth.SessionUpdateAge,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		CookieDomain:      cfg.Cookie.Domain,
		CookieSecure:      cfg.CookieSecure(),
	})

	sweeper, err := auth.NewSweeper(authService, cfg.Auth.SessionSweep)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule session sweeper")
	}
	sweeper.Start()

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Max:    cfg.Auth.RateLimitMax,
		Window: cfg.Auth.RateLimitWindow,
	})

	DBHandler := &handlers.DBHandler{DB: db, Auth: authService}
	router, err := handlers.NewRouter(DBHandler, handlers.RouterOptions{
		Origins:        cfg.Origins(),
		Limiter:        limiter,
		Logger:         log.Logger,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build router")
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	limiter.Stop()
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exiting")
}
