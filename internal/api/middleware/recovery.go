package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
)

// Recovery turns handler panics into a classified 500 response.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			class := faults.Classify(r)
			logger.Error("Handler panic",
				zap.Any("panic", r),
				zap.String("path", c.Request.URL.Path),
				zap.String("source", string(class.Source)),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":          "internal error",
				"classification": class,
			})
		}()
		c.Next()
	}
}
