package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/haulboard/core/logger"
)

// RequestLogger logs one structured line per request.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if caller := CallerFrom(c); caller.UserID != "" {
			fields["user"] = caller.UserID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		if c.Writer.Status() >= 500 {
			log.Infow("request failed", fields)
			return
		}
		log.Debugw("request", fields)
	}
}
