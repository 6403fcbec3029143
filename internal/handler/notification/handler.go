package notification

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-dispatch/internal/middleware"
	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	apperrors "github.com/jwalitptl/notification-dispatch/pkg/errors"
	"github.com/jwalitptl/notification-dispatch/pkg/httputil"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Handler serves the in-app notification feed read from the ledger.
type Handler struct {
	ledger repository.NotificationRepository
	now    func() time.Time
}

func NewHandler(ledger repository.NotificationRepository) *Handler {
	return &Handler{ledger: ledger, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.PUT("/:id/read", h.MarkRead)
	}
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	filter := model.NotificationFilter{Limit: defaultLimit}
	if raw := c.Query("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid unread flag", err))
			return
		}
		filter.UnreadOnly = unread
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid limit", err))
			return
		}
		filter.Limit = min(limit, maxLimit)
	}

	rows, err := h.ledger.ListByUser(c.Request.Context(), userID, filter)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, rows)
}

func (h *Handler) MarkRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid notification id", err))
		return
	}

	if err := h.ledger.MarkRead(c.Request.Context(), userID, id, h.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httputil.RespondWithError(c, apperrors.NotFound("notification", err))
			return
		}
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id})
}
