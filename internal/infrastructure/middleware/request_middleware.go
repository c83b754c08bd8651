package middleware

import (
	"time"

	"bemore/pkg/logger"
	"bemore/pkg/utils"

	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-ID"

// HTTPRecorder receives one observation per served request.
type HTTPRecorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// RequestIDMiddleware propagates the caller's request id, or assigns one, and
// echoes it in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = utils.GenerateRequestID()
		}
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Set("request_id", id)
		c.Next()
	}
}

// AccessLogMiddleware logs every request with its context fields and reports
// it to recorder when one is given.
func AccessLogMiddleware(cl *logger.ContextLogger, recorder HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if cl != nil {
			cl.LogRequest(c.Request.Context(), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration.Milliseconds())
		}
		if recorder != nil {
			recorder.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), duration)
		}
	}
}
