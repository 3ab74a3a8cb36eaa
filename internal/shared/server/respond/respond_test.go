package respond

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"finreport-backend/internal/shared/telemetry"
)

func TestErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	telemetry.SetOutput(io.Discard)
	defer telemetry.SetOutput(os.Stdout)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ValidationError(c, "newPassword", "Password must be at least 6 characters")
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.JSONEq(t, `{"error":{"code":"validation_error","message":"Password must be at least 6 characters","details":[{"field":"newPassword","issue":"Password must be at least 6 characters"}]}}`, resp.Body.String())
}

func TestAttachmentHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		Attachment(c, "financial-report-2026-10-15.pdf", "application/pdf", []byte("%PDF-1.3"))
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `attachment; filename="financial-report-2026-10-15.pdf"`, resp.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3", resp.Body.String())
}
