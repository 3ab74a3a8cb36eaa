package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"finreport-backend/internal/profile"
	"finreport-backend/internal/shared/server/middleware"
	"finreport-backend/internal/shared/server/respond"
	"finreport-backend/internal/usage"
)

// ProfileReader loads the caller's profile document.
type ProfileReader interface {
	Get(ctx context.Context, uid string) (profile.Profile, error)
}

// AllowanceReader reports the caller's analysis allowance.
type AllowanceReader interface {
	EnsurePeriod(ctx context.Context, userID string) (usage.Usage, error)
}

type meHandler struct {
	profiles  ProfileReader
	allowance AllowanceReader
}

// registerMeRoutes attaches GET /me: token claims, overlaid with the profile
// document and the remaining analyses when those are available.
func registerMeRoutes(rg *gin.RouterGroup, profiles ProfileReader, allowance AllowanceReader) {
	h := &meHandler{profiles: profiles, allowance: allowance}
	rg.GET("/me", h.get)
}

func (h *meHandler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}
	ctx := c.Request.Context()

	response := gin.H{
		"userId":      userID,
		"email":       middleware.UserEmailFromContext(c),
		"displayName": middleware.UserNameFromContext(c),
		"photoURL":    middleware.UserPictureFromContext(c),
	}
	if h.profiles != nil {
		p, err := h.profiles.Get(ctx, userID)
		switch {
		case err == nil:
			if p.Email != "" {
				response["email"] = p.Email
			}
			response["displayName"] = p.DisplayName
			response["photoURL"] = p.PhotoURL
			response["hasProfile"] = true
		case errors.Is(err, profile.ErrNotFound):
			response["hasProfile"] = false
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load profile", nil)
			return
		}
	}
	if h.allowance != nil {
		u, err := h.allowance.EnsurePeriod(ctx, userID)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load usage", nil)
			return
		}
		response["analysesRemaining"] = u.Remaining()
	}

	respond.JSON(c, http.StatusOK, response)
}
