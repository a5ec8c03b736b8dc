// Package app связывает конфиг, хранилище, сервис и blob-хранилище;
// общий для HTTP-сервера и dlctl.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"datalogger/internal/config"
	"datalogger/internal/dsl"
	"datalogger/internal/metrics"
	"datalogger/internal/reference"
	"datalogger/internal/service"
	"datalogger/internal/store"
	"datalogger/internal/transfer"
)

type App struct {
	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Store   store.Store
	Service *service.Service
	Blob    transfer.BlobStore
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, store.Options{
		Driver:     cfg.StoreDriver,
		DataFile:   cfg.DataFile,
		DBURL:      cfg.DBURL,
		SQLitePath: cfg.SQLitePath,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	blob, err := transfer.OpenBlobStore(transfer.BlobOptions{
		Driver: cfg.BlobDriver,
		Root:   cfg.FilesRoot,
		S3: transfer.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		},
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	m := metrics.New()
	svc := service.New(st,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithLocation(loc),
	)
	log.Info("datalogger initialized",
		zap.String("store", cfg.StoreDriver),
		zap.String("blob", cfg.BlobDriver),
		zap.String("location", loc.String()))
	return &App{Config: cfg, Log: log, Metrics: m, Store: st, Service: svc, Blob: blob}, nil
}

// Seed применяет seed-файлы и справочники из конфигурации.
func (a *App) Seed(ctx context.Context) (service.SeedResult, error) {
	schema, err := dsl.LoadAll(a.Config.SeedDir)
	if err != nil {
		return service.SeedResult{}, fmt.Errorf("load seed: %w", err)
	}
	catalogs, err := reference.LoadOptionCatalogs(a.Config.OptionsDir)
	if err != nil {
		return service.SeedResult{}, fmt.Errorf("load option catalogs: %w", err)
	}
	return a.Service.ApplySeed(ctx, schema, catalogs)
}

func (a *App) Close() error {
	return a.Store.Close()
}
