package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/logger"
)

// envelope is the body of every error response.
func envelope(appErr *apperrors.AppError) gin.H {
	return gin.H{"error": gin.H{"code": appErr.Code, "message": appErr.Message}}
}

// resolve maps err to an AppError, falling back to INTERNAL_ERROR.
func resolve(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.ErrInternalServer
}

// ErrorHandler renders the last error a handler attached with c.Error,
// unless something was already written. Internal causes are logged and
// never sent to the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := resolve(err)

		switch {
		case appErr == apperrors.ErrInternalServer && !errors.Is(err, apperrors.ErrInternalServer):
			logger.Get().Errorw("unhandled error",
				"error", err,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"request_id", c.GetString(requestIDKey),
			)
		case appErr.Internal != nil:
			logger.Get().Errorw("request failed",
				"code", appErr.Code,
				"cause", appErr.Internal,
				"path", c.Request.URL.Path,
				"request_id", c.GetString(requestIDKey),
			)
		}

		c.JSON(appErr.StatusCode, envelope(appErr))
	}
}

// Recovery turns panics into an INTERNAL_ERROR response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Get().Errorw("panic recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", c.GetString(requestIDKey),
		)
		abortWithError(c, apperrors.ErrInternalServer)
	})
}

func abortWithError(c *gin.Context, err error) {
	appErr := resolve(err)
	c.AbortWithStatusJSON(appErr.StatusCode, envelope(appErr))
}
