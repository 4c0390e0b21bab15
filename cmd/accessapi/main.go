package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkana-app/access-api/internal/config"
	"github.com/arkana-app/access-api/internal/metrics"
	"github.com/arkana-app/access-api/internal/repository"
	"github.com/arkana-app/access-api/internal/server"
	"github.com/arkana-app/access-api/internal/service"
	"github.com/arkana-app/access-api/internal/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	if cfg.Server.Environment != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	postgres, err := storage.NewPostgres(cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	var redis *storage.RedisClient
	if cfg.RateLimit.Store == "redis" {
		redis, err = storage.NewRedis(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redis.Close()
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	if err := bootstrapAdmin(postgres, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin user")
	}

	srv := server.New(cfg, redis, postgres)

	go func() {
		if err := srv.Run(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}

// bootstrapAdmin seeds the first admin account from ADMIN_EMAIL and
// ADMIN_PASSWORD. A no-op when the variables are unset or the account
// already exists, so it is safe to run on every start.
func bootstrapAdmin(postgres *storage.Postgres, cfg *config.Config) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	repo := repository.NewAdminUserRepository(postgres)
	authService := service.NewAuthService(repo, cfg.Auth.JWTSecret, cfg.Auth.ExpiryHours)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := repo.FindByEmail(ctx, service.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if err := authService.Register(ctx, email, password, "Admin"); err != nil {
		return err
	}

	log.Info().Str("email", service.NormalizeEmail(email)).Msg("seeded admin account")
	return nil
}
