package subscription

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-dispatch/internal/middleware"
	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/internal/repository"
	apperrors "github.com/jwalitptl/notification-dispatch/pkg/errors"
	"github.com/jwalitptl/notification-dispatch/pkg/httputil"
	"github.com/jwalitptl/notification-dispatch/pkg/webpush"
)

// Handler is the push subscription registry API.
type Handler struct {
	subs      repository.SubscriptionRepository
	publicKey string
}

// NewHandler takes the VAPID public key browsers must subscribe with; an
// empty key means push is not configured.
func NewHandler(subs repository.SubscriptionRepository, publicKey string) *Handler {
	return &Handler{subs: subs, publicKey: publicKey}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	push := r.Group("/push")
	{
		push.GET("/vapid-public-key", h.PublicKey)
		push.POST("/subscriptions", h.Subscribe)
		push.GET("/subscriptions", h.List)
		push.DELETE("/subscriptions/:id", h.Unsubscribe)
	}
}

// subscribeRequest is the browser's PushSubscription.toJSON() shape.
type subscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	// ExpirationTime is milliseconds since the epoch, or null.
	ExpirationTime *int64 `json:"expirationTime"`
	Keys           struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *Handler) PublicKey(c *gin.Context) {
	if h.publicKey == "" {
		httputil.RespondWithError(c, apperrors.NewConfiguration("push is not configured", nil))
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"publicKey": h.publicKey})
}

func (h *Handler) Subscribe(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid subscription", err))
		return
	}

	wire := webpush.Subscription{Endpoint: req.Endpoint, P256dh: req.Keys.P256dh, Auth: req.Keys.Auth}
	if err := wire.Validate(); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid subscription keys", err))
		return
	}

	sub := &model.PushSubscription{
		UserID:    userID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		CreatedAt: time.Now().UTC(),
	}
	if req.ExpirationTime != nil {
		exp := time.UnixMilli(*req.ExpirationTime).UTC()
		sub.ExpirationTime = &exp
	}

	if err := h.subs.Upsert(c.Request.Context(), sub); err != nil {
		if errors.Is(err, repository.ErrSubscriptionOwned) {
			httputil.RespondWithError(c, apperrors.Conflict("push endpoint is registered to another user", err))
			return
		}
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithStatus(c, http.StatusCreated, sub)
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	subs, err := h.subs.ListByUser(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, subs)
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid subscription id", err))
		return
	}

	if err := h.subs.DeleteForUser(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httputil.RespondWithError(c, apperrors.NotFound("subscription", err))
			return
		}
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	c.Status(http.StatusNoContent)
}
