package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ledgerpos/backend/internal/cache"
	"ledgerpos/backend/internal/config"
	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/httpapi"
	"ledgerpos/backend/internal/retention"
	"ledgerpos/backend/internal/service"
	"ledgerpos/backend/internal/store"
	"ledgerpos/backend/internal/store/memory"
	pgstore "ledgerpos/backend/internal/store/postgres"
)

const purgeLockKey = "ledgerpos:history-purge"

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("module", "main")

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid security configuration")
	}
	tz, err := cfg.Timezone()
	if err != nil {
		log.WithError(err).Fatal("invalid BUSINESS_TIMEZONE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("postgres migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	var kv cache.KV = cache.NewMemory()
	var guard retention.Guard
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, using in-process counters and no purge lock")
			_ = redisCache.Close()
		} else {
			kv = redisCache
			guard = retention.NewRedisGuard(redisCache.Client(), purgeLockKey, 5*time.Minute, logger)
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: in-memory")
	}

	svc := service.New(repo, service.Options{
		Location:        tz,
		CorrectionLabel: cfg.CorrectionLabel,
		RetentionDays:   cfg.HistoryRetentionDays,
		Logger:          logger,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, logger)
	if cfg.DatabaseURL != "" && cfg.SeedManagerPassword != "" {
		if err := auth.EnsureUser(ctx, domain.CreateUserRequest{Username: "manager", Password: cfg.SeedManagerPassword, Role: domain.RoleManager}); err != nil {
			log.WithError(err).Fatal("failed to seed manager account")
		}
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:    cfg.AllowedOrigin,
		Limiter:          kv,
		LoginMaxAttempts: cfg.LoginMaxAttempts,
		Logger:           logger,
	})

	scheduler := retention.NewScheduler(svc, guard, cfg.PurgeInterval(), cfg.HistoryRetentionDays, logger)
	scheduler.Start()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("ledger backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	scheduler.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Warn("close error")
		}
	}

	log.Info("server stopped")
}

// validateSecurityConfig rejects secrets that are long enough but trivially
// guessable.
func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return validateSecretStrength(cfg.AuthSecret)
}

func validateSecretStrength(secret string) error {
	lower := strings.ToLower(secret)
	for _, placeholder := range []string{"changeme", "change-me", "secret", "password", "dev-"} {
		if strings.HasPrefix(lower, placeholder) {
			return fmt.Errorf("AUTH_SECRET looks like a placeholder")
		}
	}

	distinct := make(map[rune]struct{}, 16)
	for _, r := range secret {
		distinct[r] = struct{}{}
	}
	if len(distinct) < 8 {
		return fmt.Errorf("AUTH_SECRET has too few distinct characters")
	}
	return nil
}
