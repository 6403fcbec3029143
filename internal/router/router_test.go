package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	promhandler "github.com/jwalitptl/notification-dispatch/internal/handler/prometheus"
	"github.com/jwalitptl/notification-dispatch/internal/middleware"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
)

type routeFunc func(*gin.RouterGroup)

func (f routeFunc) RegisterRoutes(r *gin.RouterGroup) { f(r) }

func ok(c *gin.Context) { c.Status(http.StatusNoContent) }

func newTestRouter() *Router {
	r := NewRouter(
		middleware.NewAuthMiddleware("jwt-secret", "cron-secret"),
		Handlers{
			Health: routeFunc(func(g *gin.RouterGroup) { g.GET("/health/live", ok) }),
			Cron:   []Handler{routeFunc(func(g *gin.RouterGroup) { g.POST("/reminders/tasks/scan", ok) })},
			User:   []Handler{routeFunc(func(g *gin.RouterGroup) { g.GET("/notifications", ok) })},
		},
		promhandler.New("router_test"),
		logger.Nop(),
		RouterConfig{CORSConfig: middleware.DefaultCORSConfig(), Mode: gin.TestMode},
	)
	r.Setup()
	return r
}

func token(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": uuid.NewString(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("jwt-secret"))
	require.NoError(t, err)
	return signed
}

func TestRouteGroups(t *testing.T) {
	engine := newTestRouter().Engine()

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{name: "health is public", method: http.MethodGet, path: "/api/v1/health/live", want: http.StatusNoContent},
		{name: "metrics are public", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "scan without secret", method: http.MethodPost, path: "/api/v1/reminders/tasks/scan", want: http.StatusUnauthorized},
		{
			name:    "scan with secret",
			method:  http.MethodPost,
			path:    "/api/v1/reminders/tasks/scan",
			headers: map[string]string{middleware.HeaderCronSecret: "cron-secret"},
			want:    http.StatusNoContent,
		},
		{name: "feed without token", method: http.MethodGet, path: "/api/v1/notifications", want: http.StatusUnauthorized},
		{
			name:    "cron secret is not a user token",
			method:  http.MethodGet,
			path:    "/api/v1/notifications",
			headers: map[string]string{middleware.HeaderCronSecret: "cron-secret"},
			want:    http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
		})
	}
}

func TestAuthenticatedFeed(t *testing.T) {
	engine := newTestRouter().Engine()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token(t))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
