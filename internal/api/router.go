package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"datalogger/internal/logging"
	"datalogger/internal/metrics"
	"datalogger/internal/service"
	"datalogger/internal/transfer"
)

type Options struct {
	Service    *service.Service
	Blob       transfer.BlobStore
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	SeedDir    string
	OptionsDir string
	Now        func() time.Time
}

type Server struct {
	svc        *service.Service
	blob       transfer.BlobStore
	log        *zap.Logger
	metrics    *metrics.Metrics
	seedDir    string
	optionsDir string
	now        func() time.Time
}

func NewServer(o Options) *Server {
	s := &Server{
		svc:        o.Service,
		blob:       o.Blob,
		log:        o.Logger,
		metrics:    o.Metrics,
		seedDir:    o.SeedDir,
		optionsDir: o.OptionsDir,
		now:        o.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Router собирает gin-движок со всеми маршрутами.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Gin(s.log), s.metrics.Gin())

	r.GET("/healthz", HealthHandler(s))
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/config", GetConfigHandler(s))
		apiGroup.PUT("/config", UpdateConfigHandler(s))

		apiGroup.GET("/entities", ListEntitiesHandler(s))
		apiGroup.POST("/entities", CreateEntityHandler(s))
		apiGroup.GET("/entities/:id", GetEntityHandler(s))
		apiGroup.PUT("/entities/:id", UpdateEntityHandler(s))
		apiGroup.DELETE("/entities/:id", DeleteEntityHandler(s))
		apiGroup.GET("/entities/:id/form", EntityFormHandler(s))
		apiGroup.GET("/entities/:id/table", EntityTableHandler(s))

		apiGroup.GET("/fields", ListFieldsHandler(s))
		apiGroup.POST("/fields", CreateFieldHandler(s))
		apiGroup.GET("/fields/:id", GetFieldHandler(s))
		apiGroup.PUT("/fields/:id", UpdateFieldHandler(s))
		apiGroup.DELETE("/fields/:id", DeleteFieldHandler(s))

		apiGroup.GET("/records", ListRecordsHandler(s))
		apiGroup.POST("/records", CreateRecordHandler(s))
		apiGroup.GET("/records/:id", GetRecordHandler(s))
		apiGroup.PUT("/records/:id", UpdateRecordHandler(s))
		apiGroup.DELETE("/records/:id", DeleteRecordHandler(s))

		apiGroup.POST("/reports", RunReportHandler(s))
		apiGroup.GET("/reports/fields", ReportFieldsHandler(s))
		apiGroup.GET("/catalogs/:name", CatalogHandler(s))

		apiGroup.GET("/export", ExportHandler(s))
		apiGroup.POST("/export/archive", ArchiveHandler(s))
		apiGroup.GET("/export/archive/*key", DownloadArchiveHandler(s))
		apiGroup.POST("/import", ImportHandler(s))

		apiGroup.GET("/actions", ListActionsHandler())
		apiGroup.POST("/actions/:action", ActionHandler(s))

		apiGroup.POST("/admin/seed", AdminSeedHandler(s))
	}
	return r
}

// Run обслуживает addr до отмены ctx, затем корректно гасит сервер.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
