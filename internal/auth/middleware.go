package auth

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/karaoke-session-system/internal/middleware"
	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/jwt"
	"github.com/karaoke-session-system/pkg/logger"
)

const (
	CookieName   = "auth_token"
	UserIDKey    = "user_id"
	touchTimeout = 2 * time.Second
)

// Toucher records that a user made a request.
type Toucher interface {
	Touch(ctx context.Context, userID uuid.UUID) error
}

func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	// Cookie for browser requests, query param for WebSocket
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}

func AuthMiddleware(secret string, toucher Toucher) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			middleware.RespondError(c, apperrors.Wrap(apperrors.ErrUnauthorized, "no token"))
			return
		}

		claims, err := jwt.ValidateToken(token, secret)
		if err != nil {
			middleware.RespondError(c, apperrors.Wrap(apperrors.ErrUnauthorized, "invalid token: %v", err))
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			middleware.RespondError(c, apperrors.Wrap(apperrors.ErrUnauthorized, "invalid subject"))
			return
		}

		if toucher != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), touchTimeout)
			if err := toucher.Touch(ctx, userID); err != nil {
				logger.GetGlobalLogger().Warnf("failed to update last seen for %s: %v", userID, err)
			}
			cancel()
		}

		c.Set(UserIDKey, userID)
		ctx := context.WithValue(c.Request.Context(), logger.UserIdKey, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID returns the authenticated user set by AuthMiddleware.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// MustUserID is UserID for routes behind AuthMiddleware. It aborts with 401
// when no user is present.
func MustUserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := UserID(c)
	if !ok {
		middleware.RespondError(c, apperrors.Wrap(apperrors.ErrUnauthorized, "no user in context"))
	}
	return id, ok
}
