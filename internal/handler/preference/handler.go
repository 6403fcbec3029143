package preference

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-dispatch/internal/middleware"
	"github.com/jwalitptl/notification-dispatch/internal/model"
	apperrors "github.com/jwalitptl/notification-dispatch/pkg/errors"
	"github.com/jwalitptl/notification-dispatch/pkg/httputil"
)

type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error)
	Update(ctx context.Context, userID uuid.UUID, in *model.NotificationPreference) (*model.NotificationPreference, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/notification-preferences", h.Get)
	r.PUT("/notification-preferences", h.Update)
}

type updateRequest struct {
	PushEnabled         *bool                     `json:"push_enabled" binding:"required"`
	SMSEnabled          *bool                     `json:"sms_enabled" binding:"required"`
	EmailEnabled        *bool                     `json:"email_enabled" binding:"required"`
	CategoryPreferences model.CategoryPreferences `json:"category_preferences"`
}

func (h *Handler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	pref, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, pref)
}

func (h *Handler) Update(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid preferences", err))
		return
	}

	pref, err := h.service.Update(c.Request.Context(), userID, &model.NotificationPreference{
		PushEnabled:         *req.PushEnabled,
		SMSEnabled:          *req.SMSEnabled,
		EmailEnabled:        *req.EmailEnabled,
		CategoryPreferences: req.CategoryPreferences,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, pref)
}
