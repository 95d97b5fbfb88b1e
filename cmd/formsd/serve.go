package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"formcore/internal/auth"
	"formcore/internal/blob"
	"formcore/internal/config"
	"formcore/internal/core"
	"formcore/internal/httpapi"
	"formcore/internal/metrics"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	hashKey, blockKey, err := cfg.SessionKeys()
	if err != nil {
		return err
	}
	zl, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := core.NewZapLogger(zl)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			zl.Warn("close store", zap.Error(err))
		}
	}()

	m := metrics.New(true)
	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetrics(m),
		core.WithAnonymousSubmissions(cfg.AllowAnonymousSubmissions),
	}
	if cfg.ArchiveExports {
		archive, err := blob.Open(ctx, cfg.Blob())
		if err != nil {
			return fmt.Errorf("open export archive: %w", err)
		}
		opts = append(opts, core.WithArchive(archive))
		zl.Info("archiving exports", zap.String("driver", string(archive.Driver())))
	}
	svc := core.NewService(store, opts...)

	sessions := auth.NewSessions(hashKey, blockKey,
		auth.WithTTL(cfg.SessionTTL),
		auth.WithSecureCookie(cfg.SessionSecure),
	)
	handler := httpapi.New(svc, auth.NewRegistry(store), sessions,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(m),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageDriver))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
