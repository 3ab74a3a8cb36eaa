package reports

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"finreport-backend/internal/analysis"
	"finreport-backend/internal/extract"
	"finreport-backend/internal/report"
	"finreport-backend/internal/shared/lock"
	"finreport-backend/internal/shared/server/middleware"
	"finreport-backend/internal/shared/server/respond"
	"finreport-backend/internal/usage"
)

type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reports", h.analyze)
	rg.POST("/reports/export", h.exportData)
	rg.GET("/reports/:id", h.get)
	rg.GET("/reports/:id/chart.png", h.chart)
	rg.GET("/reports/:id/narrative", h.narrative)
	rg.GET("/reports/:id/export", h.export)
}

func (h *Handler) analyze(c *gin.Context) {
	c.Set(middleware.ActionKey, "analyze")
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds upload limit", nil)
			return
		}
		respond.ValidationError(c, "file", "file is required")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer f.Close()

	session, err := h.Svc.Analyze(c.Request.Context(), middleware.UserIDFromContext(c), fileHeader.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set(middleware.ReportIDKey, session.ID)
	respond.JSON(c, http.StatusCreated, session)
}

func (h *Handler) get(c *gin.Context) {
	c.Set(middleware.ReportIDKey, c.Param("id"))
	session, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, session)
}

func (h *Handler) chart(c *gin.Context) {
	c.Set(middleware.ReportIDKey, c.Param("id"))
	png, err := h.Svc.Chart(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if len(png) == 0 {
		respond.NoContent(c)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) narrative(c *gin.Context) {
	c.Set(middleware.ReportIDKey, c.Param("id"))
	html, err := h.Svc.Narrative(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (h *Handler) export(c *gin.Context) {
	c.Set(middleware.ReportIDKey, c.Param("id"))
	c.Set(middleware.ActionKey, "export")
	settings, ok := settingsFromQuery(c)
	if !ok {
		return
	}
	doc, err := h.Svc.Export(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), settings)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.Attachment(c, doc.FileName, "application/pdf", doc.Bytes)
}

type exportRequest struct {
	Report   report.ReportData     `json:"report"`
	Settings report.ExportSettings `json:"settings"`
}

func (h *Handler) exportData(c *gin.Context) {
	c.Set(middleware.ActionKey, "export")
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid json body", nil)
		return
	}
	doc, err := h.Svc.ExportData(c.Request.Context(), middleware.UserIDFromContext(c), req.Report, req.Settings)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.Attachment(c, doc.FileName, "application/pdf", doc.Bytes)
}

func settingsFromQuery(c *gin.Context) (report.ExportSettings, bool) {
	settings := report.ExportSettings{FontFamily: c.Query("fontFamily")}
	if raw := c.Query("fontSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			respond.ValidationError(c, "fontSize", "fontSize must be an integer")
			return report.ExportSettings{}, false
		}
		settings.FontSize = size
	}
	return settings, true
}

func writeError(c *gin.Context, err error) {
	var analysisErr *analysis.Error
	switch {
	case c.Request.Context().Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	case errors.As(err, &analysisErr):
		respond.Error(c, http.StatusBadGateway, "analysis_failed", analysisErr.Message, nil)
	case errors.Is(err, lock.ErrBusy):
		respond.Error(c, http.StatusConflict, "busy", err.Error(), nil)
	case errors.Is(err, usage.ErrLimitReached):
		respond.Error(c, http.StatusTooManyRequests, "limit_reached", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, extract.ErrUnsupported), errors.Is(err, extract.ErrMismatch), errors.Is(err, extract.ErrEmpty):
		respond.ValidationError(c, "file", err.Error())
	case errors.Is(err, report.ErrInvalidSettings):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrExportFailed):
		respond.Error(c, http.StatusInternalServerError, "export_failed", "failed to export report", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "request failed", nil)
	}
}
