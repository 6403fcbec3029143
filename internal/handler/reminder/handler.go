package reminder

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notification-dispatch/internal/model"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
)

// Runner runs one scan of the given kind.
type Runner interface {
	Run(ctx context.Context, kind model.ScanKind) (model.ScanSummary, error)
}

// Handler exposes the scan triggers called by the external scheduler.
type Handler struct {
	runner Runner
	logger *logger.Logger
}

func NewHandler(runner Runner, logger *logger.Logger) *Handler {
	return &Handler{runner: runner, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reminders := r.Group("/reminders")
	{
		reminders.POST("/tasks/scan", h.scan(model.ScanKindTasks))
		reminders.POST("/hearings/scan", h.scan(model.ScanKindHearings))
	}
}

type scanResponse struct {
	model.ScanSummary
	Error string `json:"error,omitempty"`
}

func (h *Handler) scan(kind model.ScanKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		// A trigger that hangs up must not cut the run short; re-running is
		// safe but finishing is cheaper.
		ctx := context.WithoutCancel(c.Request.Context())

		summary, err := h.runner.Run(ctx, kind)
		if err != nil {
			h.logger.WithContext(ctx).Error(err, "scan trigger failed", "kind", string(kind))
			c.JSON(http.StatusInternalServerError, scanResponse{ScanSummary: summary, Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, scanResponse{ScanSummary: summary})
	}
}
