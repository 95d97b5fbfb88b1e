// Command formsd serves the form builder and administers its identities.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"formcore/internal/config"
	"formcore/internal/core"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "formsd",
		Short:         "Form builder service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")
	load := func() (config.Config, error) { return config.Load(envFile) }
	root.AddCommand(newServeCmd(load), newCreateUserCmd(load))
	return root
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// openStore opens the record store with the default rules. The returned
// closer is a no-op for backends without resources.
func openStore(cfg config.Config) (core.PersistentStore, func() error, error) {
	store, err := core.OpenPersistentStore(cfg.Storage(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		return store, c.Close, nil
	}
	return store, func() error { return nil }, nil
}
