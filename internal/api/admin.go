package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"datalogger/internal/dsl"
	"datalogger/internal/reference"
)

type seedReq struct {
	SeedDir    string `json:"seed_dir"`    // директория с *.dsl
	OptionsDir string `json:"options_dir"` // директория со справочниками вариантов
}

// POST /api/admin/seed: читает seed-файлы и справочники, линтит, создаёт недостающее
func AdminSeedHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req seedReq
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badJSON(c, err)
				return
			}
		}

		seedDir := strings.TrimSpace(req.SeedDir)
		if seedDir == "" {
			seedDir = s.seedDir
		}
		optionsDir := strings.TrimSpace(req.OptionsDir)
		if optionsDir == "" {
			optionsDir = s.optionsDir
		}

		schema, err := dsl.LoadAll(seedDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "DSL load error", "details": err.Error()})
			return
		}
		catalogs, err := reference.LoadOptionCatalogs(optionsDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Catalog load error", "details": err.Error()})
			return
		}

		res, err := s.svc.ApplySeed(c.Request.Context(), schema, catalogs)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"seedDir":    seedDir,
			"optionsDir": optionsDir,
			"result":     res,
		})
	}
}
