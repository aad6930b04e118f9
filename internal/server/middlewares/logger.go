package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"

	"vendormonitor/pkg/logger"
)

// Logger 访问日志：5xx 记 error，4xx 记 warn，其余 debug
func Logger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		format := "[HTTP] %s %s -> %d (%s)"
		args := []interface{}{c.Request.Method, path, status, time.Since(start)}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.Errorf(ctx, format, args...)
		case status >= 400:
			log.Warnf(ctx, format, args...)
		default:
			log.Debugf(ctx, format, args...)
		}
	}
}
