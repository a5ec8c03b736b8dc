package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"datalogger/internal/transfer"
)

// GET /api/export?format=json|csv
func ExportHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "json")))
		if format != "json" && format != "csv" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or csv"})
			return
		}
		snap, err := s.svc.Snapshot(c.Request.Context())
		if err != nil {
			writeError(c, s.log, err)
			return
		}

		var buf bytes.Buffer
		contentType := "application/json"
		if format == "csv" {
			contentType = "text/csv"
			err = transfer.ExportCSV(&buf, snap)
		} else {
			err = transfer.ExportJSON(&buf, snap)
		}
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		name := transfer.FileName(transfer.DefaultPrefix, format, s.now())
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		c.Data(http.StatusOK, contentType+"; charset=utf-8", buf.Bytes())
	}
}

// POST /api/import: JSON в теле или multipart-поле "file"; состояние заменяется целиком
func ImportHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var src io.Reader = c.Request.Body
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			file, _, err := c.Request.FormFile("file")
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "multipart file not found (field name 'file')"})
				return
			}
			defer file.Close()
			src = file
		}

		snap, err := transfer.DecodeImport(src)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		if err := s.svc.Import(c.Request.Context(), snap); err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":       true,
			"reload":   true,
			"entities": len(snap.Entities),
			"fields":   len(snap.Fields),
			"records":  len(snap.Records),
		})
	}
}

// POST /api/export/archive: JSON-выгрузка в blob (local/s3)
func ArchiveHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.blob == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "blob store not configured"})
			return
		}
		snap, err := s.svc.Snapshot(c.Request.Context())
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		obj, err := transfer.Archive(c.Request.Context(), s.blob, snap, s.now())
		if err != nil {
			s.log.Error("archive export failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "archive store error", "details": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, obj)
	}
}

// GET /api/export/archive/*key
func DownloadArchiveHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.blob == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "blob store not configured"})
			return
		}
		key := strings.TrimPrefix(c.Param("key"), "/")
		rc, err := s.blob.Open(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Archive not found"})
			return
		}
		defer rc.Close()

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, path.Base(key)))
		c.Header("Content-Type", "application/json")
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, rc); err != nil {
			s.log.Warn("archive download interrupted", zap.String("key", key), zap.Error(err))
		}
	}
}
