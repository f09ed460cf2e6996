package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"partsmatch/internal/config"
	"partsmatch/internal/listener"
	"partsmatch/internal/logging"
	"partsmatch/internal/pipeline"
	"partsmatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger := logging.NewService("mail-listener", cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	m, err := pipeline.NewMatcher(cfg, db, logger)
	must(err)
	svc := listener.NewService(db, cfg, pipeline.NewService(db, cfg, m, logger), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("mail listener starting",
		zap.String("provider", cfg.MailListenerProvider),
		zap.Int("interval_sec", cfg.MailListenerIntervalSec),
	)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
