package profile

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"finreport-backend/internal/shared/auth"
	"finreport-backend/internal/shared/lock"
	"finreport-backend/internal/shared/server/middleware"
	"finreport-backend/internal/shared/server/respond"
	"finreport-backend/internal/shared/storage/object"
)

const maxDisplayName = 100

type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile", h.get)
	rg.PATCH("/profile", h.update)
	rg.PUT("/profile/image", h.uploadImage)
}

// RegisterPublicRoutes serves stored images for stores without public URLs.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile-images/:uid", h.image)
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, p)
}

type updateRequest struct {
	DisplayName *string `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

func (h *Handler) update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid json body", nil)
		return
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" || len([]rune(name)) > maxDisplayName {
			respond.ValidationError(c, "displayName", "display name must be 1-100 characters")
			return
		}
		req.DisplayName = &name
	}
	if req.DisplayName == nil && req.PhotoURL == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "nothing to update", nil)
		return
	}

	p, err := h.Svc.Update(c.Request.Context(), middleware.UserIDFromContext(c), Update{
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, p)
}

func (h *Handler) uploadImage(c *gin.Context) {
	c.Set(middleware.ActionKey, "profile_image")
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

	br := bufio.NewReader(f)
	head, _ := br.Peek(512)
	contentType := http.DetectContentType(head)

	url, err := h.Svc.UploadImage(c.Request.Context(), middleware.UserIDFromContext(c), contentType, br)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{"photoURL": url})
}

func (h *Handler) image(c *gin.Context) {
	rc, err := h.Svc.OpenImage(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, object.ErrNotFound) || errors.Is(err, object.ErrInvalidKey) {
			respond.Error(c, http.StatusNotFound, "not_found", "image not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open image", nil)
		return
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	head, _ := br.Peek(512)
	c.Header("Cache-Control", "private, max-age=300")
	c.Header("Content-Type", http.DetectContentType(head))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, br)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "profile not found", nil)
	case errors.Is(err, ErrNotImage):
		respond.ValidationError(c, "file", "file must be an image")
	case errors.Is(err, auth.ErrUserNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	case errors.Is(err, lock.ErrBusy):
		respond.Error(c, http.StatusConflict, "busy", err.Error(), nil)
	case errors.Is(err, ErrIdentityMirror):
		respond.Error(c, http.StatusBadGateway, "identity_error", "failed to update identity profile", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to update profile", nil)
	}
}
