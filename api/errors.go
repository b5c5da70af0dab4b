package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/internal/middleware"
)

// respondError writes the status matching err's kind. Errors outside the domain
// taxonomy are logged and reported as internal.
func respondError(c *gin.Context, err error) {
	var (
		validation *fleeterr.ValidationError
		notFound   *fleeterr.NotFoundError
		overlap    *fleeterr.OverlapError
		conflict   *fleeterr.ConflictError
		rate       *fleeterr.RateUnavailableError
		channel    *fleeterr.UnknownChannelError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_INPUT", "message": err.Error(), "field": validation.Field})
	case errors.As(err, &channel):
		c.JSON(http.StatusBadRequest, gin.H{"code": "UNKNOWN_CHANNEL", "message": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": err.Error()})
	case errors.As(err, &overlap):
		c.JSON(http.StatusConflict, gin.H{"code": "RENTAL_OVERLAP", "message": err.Error(), "conflict_ids": overlap.ConflictIDs})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "CONFLICT", "message": err.Error()})
	case errors.As(err, &rate):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "RATE_UNAVAILABLE", "message": err.Error()})
	default:
		_ = c.Error(err)
		middleware.GetLogger(c).ErrorContext(c, "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": code, "message": message})
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "INVALID_ID", "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		badRequest(c, "INVALID_ID", "Invalid "+name)
		return nil, false
	}
	return &id, true
}

// queryTime accepts RFC 3339 timestamps and plain dates, which mean midnight UTC.
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t, err = time.Parse(time.DateOnly, v)
	}
	if err != nil {
		badRequest(c, "INVALID_DATE", "Invalid "+name+" format")
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func page(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = defaultLimit, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(c, "INVALID_LIMIT", "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, maxLimit)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "INVALID_OFFSET", "offset must not be negative")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// bind decodes the JSON body into v, answering 400 on malformed input.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "INVALID_BODY", err.Error())
		return false
	}
	return true
}
