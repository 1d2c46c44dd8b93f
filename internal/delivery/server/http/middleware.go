package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fsgate/internal/shared/logging"
	id "fsgate/internal/shared/utils/id"
)

const requestIDHeader = "X-Request-Id"

func resolveRequestID(r *http.Request) string {
	for _, header := range []string{requestIDHeader, "X-Log-Id", "X-Correlation-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}

// LoggingMiddleware tags each request with an id and logs it once finished.
// Metrics scrapes are not logged.
func LoggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		requestID := resolveRequestID(c.Request)
		if requestID == "" {
			requestID = id.NewRequestID()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("requestID", requestID)

		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/metrics" {
			return
		}
		logger.Info("[%s] %s %s from %s -> %d (%s)",
			requestID, c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// JSONMiddleware rejects request bodies that are not JSON.
func JSONMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
			contentType := c.GetHeader("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, APIResponse{
					Error: "Content-Type must be application/json",
				})
				return
			}
		}
		c.Next()
	}
}
