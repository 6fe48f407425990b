package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request with the request id, the caller
// account when known, and the outcome.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    SanitizePath(c.Request.URL.Path),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}
		if id, ok := c.Get(AccountIDKey); ok {
			fields["account_id"] = id
		}
		entry := GetRequestLogger(c).WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("handled request")
		case c.Writer.Status() >= 400:
			entry.Warn("handled request")
		default:
			entry.Info("handled request")
		}
	}
}
