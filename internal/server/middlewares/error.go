package middlewares

import (
	"github.com/gin-gonic/gin"

	"vendormonitor/pkg/ginx"
	"vendormonitor/pkg/logger"
)

// ErrorHandler 统一错误处理中间件：处理器通过 c.Error 上报的错误统一转换为响应
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		log.Errorf(c.Request.Context(), "[HTTP] %s %s failed: %v", c.Request.Method, c.FullPath(), err)

		// 处理器已写出响应时只记录
		if c.Writer.Written() {
			return
		}
		ginx.FromError(c, err)
	}
}
