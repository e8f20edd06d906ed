package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/logger"
)

// BindJSON decodes the request body into req, answering 400 on failure. The
// decoder's text is logged, never returned.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.GetGlobalLogger().WithContext(c.Request.Context()).
			Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		RespondError(c, apperrors.Wrap(apperrors.ErrInvalidArgument, "invalid request body"))
		return false
	}
	return true
}

// UUIDParam parses a path parameter as a UUID, answering 400 on failure.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondError(c, apperrors.Wrap(apperrors.ErrInvalidArgument, "%s must be a valid id", name))
		return uuid.Nil, false
	}
	return id, true
}
