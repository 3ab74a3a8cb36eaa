package account

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"finreport-backend/internal/shared/auth"
	"finreport-backend/internal/shared/server/middleware"
	"finreport-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterPublicRoutes mounts the flows that run before a user has a token.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/account/register", h.register)
	rg.POST("/account/sign-in", h.signIn)
	rg.POST("/account/password-reset", h.passwordReset)
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/account/sign-out", h.signOut)
	rg.POST("/account/verification", h.verification)
	rg.POST("/account/password", h.changePassword)
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	DisplayName     string `json:"displayName"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		writeError(c, ErrPasswordMismatch)
		return
	}
	reg, err := h.Svc.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, reg)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if !bind(c, &req) {
		return
	}
	session, err := h.Svc.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, session)
}

type resetRequest struct {
	Email string `json:"email"`
}

func (h *Handler) passwordReset(c *gin.Context) {
	var req resetRequest
	if !bind(c, &req) {
		return
	}
	if err := h.Svc.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"sent": true})
}

func (h *Handler) signOut(c *gin.Context) {
	if err := h.Svc.SignOut(c.Request.Context(), middleware.UserIDFromContext(c)); err != nil {
		writeError(c, err)
		return
	}
	respond.NoContent(c)
}

func (h *Handler) verification(c *gin.Context) {
	if err := h.Svc.SendVerification(c.Request.Context(), middleware.UserIDFromContext(c)); err != nil {
		writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"sent": true})
}

type passwordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req passwordRequest
	if !bind(c, &req) {
		return
	}
	err := h.Svc.ChangePassword(c.Request.Context(), middleware.UserIDFromContext(c), req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.NoContent(c)
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid json body", nil)
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPasswordMismatch):
		respond.ValidationError(c, "confirmPassword", err.Error())
	case errors.Is(err, ErrPasswordTooShort):
		respond.ValidationError(c, "password", err.Error())
	case errors.Is(err, ErrInvalidEmail):
		respond.ValidationError(c, "email", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		respond.Error(c, http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, auth.ErrEmailExists):
		respond.Error(c, http.StatusConflict, "email_exists", err.Error(), nil)
	case errors.Is(err, auth.ErrUserNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
	case errors.Is(err, auth.ErrNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "not_configured", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusBadGateway, "identity_error", err.Error(), nil)
	}
}
