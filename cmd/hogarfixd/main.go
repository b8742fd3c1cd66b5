// Command hogarfixd runs the module runtime daemon: it opens the SQLite
// store, loads the persisted modules into the runtime, and serves the HTTP
// API until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	hogarfix "github.com/hogarfix/hogarfix"
	"github.com/hogarfix/hogarfix/config"
	"github.com/hogarfix/hogarfix/render"
	"github.com/hogarfix/hogarfix/server"
	"github.com/hogarfix/hogarfix/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "hogarfixd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	zlog, err := newZapLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zlog.Sync() //nolint:errcheck
	logger := &zapLogger{sugar: zlog.Sugar()}

	backend, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := backend.EnsureCollections(ctx,
		hogarfix.CollectionModules,
		hogarfix.CollectionModuleData,
		server.CollectionTechnicians,
	); err != nil {
		return err
	}

	runtime := hogarfix.NewModuleRuntime(backend, logger)
	if err := runtime.Manager.InitializeFromStore(ctx, ""); err != nil {
		logger.Warn("initial module sync failed", "error", err)
	}

	directory := server.NewStoreTechnicianDirectory(backend, logger)
	renderer := render.New(directory, logger)
	srv := server.New(runtime, renderer, cfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newZapLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// zapLogger adapts a zap sugared logger to the runtime's kv-variadic
// logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *zapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
