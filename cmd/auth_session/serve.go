package main

import (
	"auth_session/internal/config"
	"auth_session/internal/handler"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfigPath(*configPath); err != nil {
				return err
			}
			return serve(cmd.Context(), config.MustLoadConfig(*configPath))
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lgr := setupLogger(cfg.Env)
	lgr.Info("starting auth session service", slog.String("env", cfg.Env), slog.String("db_driver", cfg.Driver))

	if cfg.Env != envLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, cfg, lgr)
	if err != nil {
		lgr.Error("failed to init app", slog.Any("error", err))
		return err
	}
	defer a.Close()

	h := handler.NewHandler(a.service, lgr, handler.Options{
		SecureCookies: cfg.SecureCookies,
		Metrics:       a.metrics.Handler(),
	})

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      h.InitRoutes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lgr.Info("server listening", slog.String("address", cfg.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			lgr.Error("server stopped", slog.Any("error", err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	lgr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("graceful shutdown failed", slog.Any("error", err))
		return err
	}

	lgr.Info("server stopped")
	return nil
}
