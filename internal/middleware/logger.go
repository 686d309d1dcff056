package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-scheduling/pkg/logger"
)

// Logger attaches a request-scoped logger to the request context and logs
// each request once it completes.
func Logger(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		reqLog := base.WithFields(map[string]interface{}{
			"request_id": c.GetString(ContextRequestID),
		})
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		event := reqLog.ZL.Info()
		msg := "Request processed"
		switch {
		case status >= 500:
			event = reqLog.ZL.Error()
			msg = "Server error"
		case status >= 400:
			event = reqLog.ZL.Warn()
			msg = "Client error"
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
