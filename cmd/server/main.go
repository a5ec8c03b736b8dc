package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"datalogger/internal/api"
	"datalogger/internal/app"
	"datalogger/internal/config"
	"datalogger/internal/logging"
)

func main() {
	cfg, err := config.LoadWithFlags(flag.CommandLine, os.Args[1:], "config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	}()

	if cfg.AutoSeed {
		res, err := a.Seed(ctx)
		if err != nil {
			return fmt.Errorf("auto seed: %w", err)
		}
		log.Info("auto seed done",
			zap.Strings("fields", res.FieldsCreated),
			zap.Strings("entities", res.EntitiesCreated))
	}

	srv := api.NewServer(api.Options{
		Service:    a.Service,
		Blob:       a.Blob,
		Logger:     log,
		Metrics:    a.Metrics,
		SeedDir:    cfg.SeedDir,
		OptionsDir: cfg.OptionsDir,
	})
	return srv.Run(ctx, ":"+cfg.Port)
}
