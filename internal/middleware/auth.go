package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/notification-dispatch/pkg/errors"
	"github.com/jwalitptl/notification-dispatch/pkg/httputil"
)

const (
	ContextUserID    = "user_id"
	HeaderCronSecret = "X-Cron-Secret"
)

// AuthMiddleware checks bearer tokens issued by the account service and the
// shared secret the scheduler sends with scan triggers.
type AuthMiddleware struct {
	jwtSecret  []byte
	cronSecret string
}

func NewAuthMiddleware(jwtSecret, cronSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret:  []byte(jwtSecret),
		cronSecret: cronSecret,
	}
}

// Authenticate verifies the HS256 token and sets the caller's user id in
// context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(m.jwtSecret) == 0 {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("token verification is not configured")))
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("missing bearer token")))
			return
		}

		userID, err := m.parseToken(parts[1])
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

func (m *AuthMiddleware) parseToken(raw string) (uuid.UUID, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}

	id, _ := claims["user_id"].(string)
	if id == "" {
		id, _ = claims.GetSubject()
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id claim: %w", err)
	}
	return userID, nil
}

// RequireCronSecret guards the scan triggers. With no secret configured the
// triggers are open, which is only meant for local runs.
func (m *AuthMiddleware) RequireCronSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.cronSecret == "" {
			c.Next()
			return
		}
		given := c.GetHeader(HeaderCronSecret)
		if subtle.ConstantTimeCompare([]byte(given), []byte(m.cronSecret)) != 1 {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("bad cron secret")))
			return
		}
		c.Next()
	}
}

// UserID returns the caller set by Authenticate.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}
