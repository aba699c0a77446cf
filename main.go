package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reldiff/internal/api"
	"reldiff/internal/archive"
	"reldiff/internal/config"
	"reldiff/internal/logging"
	"reldiff/internal/middleware"
	"reldiff/internal/release"
	"reldiff/internal/storage"
	"reldiff/internal/tags"

	"go.uber.org/zap"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	db, err := storage.OpenDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	arc, err := archive.New(db, archive.Options{
		CacheSize: cfg.Archive.CacheSize,
		Compression: archive.CompressionOptions{
			MinSize: archive.DefaultCompressionOptions().MinSize,
			Level:   cfg.Archive.CompressionLevel,
		},
	}, logger.Logger)
	if err != nil {
		logger.Fatal("failed to initialize archive", zap.Error(err))
	}

	order, err := tags.ParseOrderPolicy(cfg.Diff.Order)
	if err != nil {
		logger.Fatal("invalid tag order", zap.Error(err))
	}
	svc := release.NewService(logger.Logger)
	svc.Excludes = cfg.Diff.Excludes
	svc.Timeout = cfg.Diff.Timeout.Std()
	svc.Order = order
	svc.TagPrefix = cfg.Diff.TagPrefix

	mux := http.NewServeMux()
	api.NewDiffHandler(svc, arc, logger).Register(mux)

	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server",
		zap.String("address", addr),
		zap.String("environment", cfg.Environment),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// loadConfig reads RELDIFF_CONFIG, or the file for RELDIFF_ENV when that
// exists, falling back to the defaults.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("RELDIFF_CONFIG")
	if path == "" {
		path = config.PathForEnv()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}
