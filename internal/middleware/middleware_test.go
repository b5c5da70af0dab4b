package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/semanticallynull/ebike-fleet/internal/middleware"
	"github.com/semanticallynull/ebike-fleet/profile"
)

func router(reg *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Metrics(reg), middleware.Authenticate())
	r.GET("/me", func(c *gin.Context) {
		actor, _ := middleware.GetActor(c)
		c.JSON(http.StatusOK, gin.H{"user": actor.UserID, "role": actor.Role})
	})
	r.GET("/admin", middleware.RequireRole(profile.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path, user, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set(middleware.ActorIDHeader, user)
	}
	if role != "" {
		req.Header.Set(middleware.ActorRoleHeader, role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	r := router(prometheus.NewRegistry())

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "u1", "superuser").Code)

	w := do(r, "/me", "u1", "driver")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u1","role":"driver"}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := router(prometheus.NewRegistry())

	assert.Equal(t, http.StatusForbidden, do(r, "/admin", "u1", "driver").Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "u2", "admin").Code)
}

func TestMetrics_LabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := router(reg)

	do(r, "/admin", "u1", "driver")
	do(r, "/nowhere", "u1", "driver")

	n, err := testutil.GatherAndCount(reg, "http_request_errors_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}
