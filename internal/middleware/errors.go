package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/karaoke-session-system/pkg/apperrors"
	"github.com/karaoke-session-system/pkg/logger"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RespondError writes err as {error, code}. Server side failures are logged
// with their full text; clients only ever see the summary.
func RespondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	log := logger.GetGlobalLogger().WithContext(c.Request.Context())
	if apperrors.IsClientError(err) {
		log.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: apperrors.Message(err),
		Code:  apperrors.Code(err),
	})
}

// ErrorHandler renders the last error attached with c.Error when the handler
// did not write a response itself.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		RespondError(c, c.Errors.Last().Err)
	}
}
