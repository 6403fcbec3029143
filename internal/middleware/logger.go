package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/notification-dispatch/pkg/logger"
)

// Logger logs every request once it has been served. Request bodies are not
// logged: subscription payloads carry key material.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"user_agent", c.Request.UserAgent(),
		}

		var err error
		if last := c.Errors.Last(); last != nil {
			err = last.Err
		}

		switch {
		case status >= 500:
			log.Error(err, "Server error", fields...)
		case status >= 400:
			log.Warn(err, "Client error", fields...)
		default:
			log.Info("Request processed", fields...)
		}
	}
}
