package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"datalogger/internal/service"
)

// ===== ENTITIES =====

// GET /api/entities
func ListEntitiesHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.svc.ListEntities(c.Request.Context())
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// POST /api/entities
func CreateEntityHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.EntityInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badJSON(c, err)
			return
		}
		e, err := s.svc.CreateEntity(c.Request.Context(), in)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, e.Version)
		c.JSON(http.StatusCreated, e)
	}
}

// GET /api/entities/:id
func GetEntityHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := s.svc.GetEntity(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, e.Version)
		c.JSON(http.StatusOK, e)
	}
}

// PUT /api/entities/:id: версия из If-Match или body.version
func UpdateEntityHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.EntityInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badJSON(c, err)
			return
		}
		if v, ok := readExpectedVersion(c); ok {
			in.Version = v
		}
		e, err := s.svc.UpdateEntity(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, e.Version)
		c.JSON(http.StatusOK, e)
	}
}

// DELETE /api/entities/:id: вместе с записями сущности
func DeleteEntityHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.svc.DeleteEntity(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, s.log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// GET /api/entities/:id/form
func EntityFormHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := s.svc.Form(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, f)
	}
}

// GET /api/entities/:id/table?from=&to=&limit=&offset=&sort=
func EntityTableHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := parseListParams(c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := s.svc.EntityTable(c.Request.Context(), c.Param("id"), f)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// ===== FIELDS =====

// GET /api/fields
func ListFieldsHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.svc.ListFields(c.Request.Context())
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// POST /api/fields
func CreateFieldHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.FieldInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badJSON(c, err)
			return
		}
		f, err := s.svc.CreateField(c.Request.Context(), in)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, f.Version)
		c.JSON(http.StatusCreated, f)
	}
}

// GET /api/fields/:id
func GetFieldHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := s.svc.GetField(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, f.Version)
		c.JSON(http.StatusOK, f)
	}
}

// PUT /api/fields/:id
func UpdateFieldHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.FieldInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badJSON(c, err)
			return
		}
		if v, ok := readExpectedVersion(c); ok {
			in.Version = v
		}
		f, err := s.svc.UpdateField(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, f.Version)
		c.JSON(http.StatusOK, f)
	}
}

// DELETE /api/fields/:id: id вычищается из всех сущностей
func DeleteFieldHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.svc.DeleteField(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, s.log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ===== RECORDS =====

// GET /api/records: total в X-Total-Count
func ListRecordsHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := parseListParams(c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		recs, total, err := s.svc.ListRecords(c.Request.Context(), f)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		c.Header("X-Total-Count", strconv.Itoa(total))
		c.JSON(http.StatusOK, recs)
	}
}

// POST /api/records
func CreateRecordHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.RecordInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badJSON(c, err)
			return
		}
		r, err := s.svc.CreateRecord(c.Request.Context(), in)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, r.Version)
		c.JSON(http.StatusCreated, r)
	}
}

// GET /api/records/:id
func GetRecordHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := s.svc.GetRecord(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, r.Version)
		c.JSON(http.StatusOK, r)
	}
}

// PUT /api/records/:id: меняются только data и timestamp
func UpdateRecordHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in service.RecordInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badJSON(c, err)
			return
		}
		if v, ok := readExpectedVersion(c); ok {
			in.Version = v
		}
		r, err := s.svc.UpdateRecord(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			writeError(c, s.log, err)
			return
		}
		setETag(c, r.Version)
		c.JSON(http.StatusOK, r)
	}
}

// DELETE /api/records/:id
func DeleteRecordHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.svc.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, s.log, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
