package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/account/sqlstore"
	"github.com/MrEthical07/authgate/internal/httpapi"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides AUTHGATE_LISTEN)")
	return cmd
}

func serve(ctx context.Context, cfg serverConfig, logger *zap.Logger) error {
	store, err := sqlstore.Open(ctx, cfg.DB.Dialect, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if cfg.DB.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	rdb := redis.NewUniversalClient(cfg.redisOptions())
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	providers, err := cfg.providers()
	if err != nil {
		return err
	}

	builder := authgate.New().
		WithConfig(cfg.gateway()).
		WithRedis(rdb).
		WithAccountStore(store).
		WithProviders(providers...).
		WithLogger(logger)
	if cfg.SMSLogSender {
		builder = builder.WithSMSSender(logSender{logger: logger})
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      httpapi.New(engine, logger, cfg.httpOptions()).Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Listen),
			zap.Strings("login_types", engine.LoginTypes()),
			zap.Strings("platforms", engine.Platforms()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
