package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"datalogger/internal/model"
	"datalogger/internal/reference"
	"datalogger/internal/report"
	"datalogger/internal/service"
)

// GET /api/config
func GetConfigHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := s.svc.Config(c.Request.Context())
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// PUT /api/config
func UpdateConfigHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in model.Config
		if err := c.ShouldBindJSON(&in); err != nil {
			badJSON(c, err)
			return
		}
		cfg, err := s.svc.UpdateConfig(c.Request.Context(), in)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// POST /api/reports
func RunReportHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q report.Query
		if err := c.ShouldBindJSON(&q); err != nil {
			badJSON(c, err)
			return
		}
		rep, err := s.svc.RunReport(c.Request.Context(), q)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}

// GET /api/reports/fields: числовые поля для выбора в отчёте
func ReportFieldsHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.svc.ReportFields(c.Request.Context())
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/catalogs/:name: справочник вариантов для select
func CatalogHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		cats, err := reference.LoadOptionCatalogs(s.optionsDir)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		cat, ok := cats[c.Param("name")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Catalog not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"name":   cat.Name,
			"items":  cat.Items,
			"values": cat.Values(),
		})
	}
}

// GET /api/actions
func ListActionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, service.Actions())
	}
}

// POST /api/actions/:action: тело передаётся обработчику действия как есть
func ActionHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			badJSON(c, err)
			return
		}
		out, err := s.svc.Do(c.Request.Context(), service.Action(c.Param("action")), json.RawMessage(body))
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "result": out})
	}
}

// GET /healthz
func HealthHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.svc.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
