package router

import (
	"github.com/gin-gonic/gin"

	promhandler "github.com/jwalitptl/notification-dispatch/internal/handler/prometheus"
	"github.com/jwalitptl/notification-dispatch/internal/middleware"
	"github.com/jwalitptl/notification-dispatch/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers groups the route owners by who may call them.
type Handlers struct {
	Health Handler
	// Cron routes are called by the external scheduler.
	Cron []Handler
	// User routes need an authenticated user.
	User []Handler
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	metrics  *promhandler.Handler
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        middleware.RateLimiterConfig
	CORSConfig       middleware.CORSConfig
	SizeLimit        middleware.SizeLimitConfig
	Mode             string
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	metrics *promhandler.Handler,
	log *logger.Logger,
	config RouterConfig,
) *Router {
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	gin.SetMode(config.Mode)
	if config.SizeLimit.MaxBodySize <= 0 {
		config.SizeLimit = middleware.DefaultSizeLimitConfig()
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		metrics:  metrics,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		metrics.Middleware(),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.SizeLimit),
	)

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(config.RateLimit)
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")

	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}

	cron := api.Group("")
	cron.Use(r.auth.RequireCronSecret())
	for _, h := range r.handlers.Cron {
		h.RegisterRoutes(cron)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.handlers.User {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
