package usage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsageRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "u1")
		c.Next()
	})
	h := NewHandler(svc)
	api := r.Group("/api/v1")
	h.RegisterRoutes(api)
	h.RegisterDevRoutes(api.Group("/dev"))
	return r
}

func TestGetUsage(t *testing.T) {
	svc := NewService()
	r := newUsageRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Starter", body["plan"])
	assert.EqualValues(t, 10, body["limit"])
	assert.EqualValues(t, 0, body["used"])
	assert.EqualValues(t, 10, body["remaining"])
}

func TestDevResetUsage(t *testing.T) {
	svc := NewService()
	r := newUsageRouter(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/dev/usage/reset", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
