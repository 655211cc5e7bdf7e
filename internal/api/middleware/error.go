package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"swing-backtest/internal/api/models"
)

// Recovery converts panics into the uniform error body and logs the cause.
// A panicking run must never take the server down with it.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered",
			zap.String("path", c.Request.URL.Path),
			zap.Any("cause", recovered),
		)
		c.JSON(http.StatusInternalServerError,
			models.NewError("INTERNAL_ERROR", fmt.Sprintf("%v", recovered)))
		c.Abort()
	})
}
