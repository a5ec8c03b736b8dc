package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"datalogger/internal/model"
	"datalogger/internal/report"
	"datalogger/internal/service"
	"datalogger/internal/transfer"
)

// statusForErrors: 409 для конфликтов имён и версий, иначе 400
func statusForErrors(errs []model.FieldError) int {
	for _, e := range errs {
		if e.Code == model.ErrDuplicateName || e.Code == model.ErrVersionConflict {
			return http.StatusConflict
		}
	}
	return http.StatusBadRequest
}

// writeError переводит ошибку сервиса в HTTP-ответ.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var (
		ve *model.ValidationError
		re *report.Error
		ie *transfer.ImportError
		se *service.SeedError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(statusForErrors(ve.Errors), gin.H{"errors": ve.Errors})
	case errors.As(err, &re):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": re.Message, "code": re.Code})
	case errors.As(err, &ie):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid import file", "problems": ie.Problems})
	case errors.As(err, &se):
		c.JSON(http.StatusBadRequest, gin.H{"error": "schema has blocking issues", "issues": se.Issues, "hint": "fix seed files and retry"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnknownAction):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrStorage):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable"})
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func badJSON(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "details": err.Error()})
}

// readExpectedVersion читает ожидаемую версию из If-Match ("3", "\"3\"", W/"3").
func readExpectedVersion(c *gin.Context) (int64, bool) {
	ifMatch := strings.TrimSpace(c.GetHeader("If-Match"))
	if ifMatch == "" {
		return 0, false
	}
	ifMatch = strings.TrimPrefix(ifMatch, "W/")
	ifMatch = strings.Trim(ifMatch, `"'`)
	v, err := strconv.ParseInt(ifMatch, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func setETag(c *gin.Context, version int64) {
	c.Header("ETag", `"`+strconv.FormatInt(version, 10)+`"`)
}
