package main

import (
	"auth_session/internal/auth"
	"auth_session/internal/config"
	"auth_session/internal/limiter"
	"auth_session/internal/metrics"
	"auth_session/internal/service"
	"auth_session/internal/storage"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type app struct {
	service service.Service
	metrics *metrics.Metrics
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// newApp wires storage, codecs, the optional limiter and metrics into a service.
func newApp(ctx context.Context, cfg *config.Config, lgr *slog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	st, err := storage.New(ctx, cfg.Driver, cfg.DbURL)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.closers = append(a.closers, st.Close)

	if err := st.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(cfg.Cost)
	if err != nil {
		a.Close()
		return nil, err
	}
	access, err := auth.NewTokenCodec(cfg.AccessSecret, cfg.AccessTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("access token codec: %w", err)
	}
	refresh, err := auth.NewTokenCodec(cfg.RefreshSecret, cfg.RefreshTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("refresh token codec: %w", err)
	}

	opts := []service.Option{service.WithRecorder(a.metrics)}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		a.closers = append(a.closers, client.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			// the limiter fails open, so an unreachable redis is not fatal
			lgr.Warn("login limiter redis unreachable", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
		}
		cancel()

		lim, err := limiter.NewRedisLimiter(client, cfg.MaxAttempts, cfg.Window)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, service.WithLimiter(lim))
	} else {
		lgr.Info("login limiter disabled")
	}

	a.service = service.NewService(lgr, st, hasher, access, refresh, opts...)

	return a, nil
}
