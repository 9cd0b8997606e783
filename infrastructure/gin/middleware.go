package gin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
)

const (
	// RequestIDHeader carries the request ID in and out.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key holding the request ID.
	RequestIDKey = "request_id"

	maxRequestIDLen = 128
)

// LoggerMiddleware logs one structured line per request.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
			logger.String(RequestIDKey, c.GetString(RequestIDKey)),
		}

		if len(c.Errors) > 0 {
			errorMessages := make([]string, len(c.Errors))
			for i, err := range c.Errors {
				errorMessages[i] = err.Err.Error()
			}
			fields = append(fields, logger.Strings("errors", errorMessages))
			log.Error("HTTP request with errors", fields...)
			return
		}

		if strings.HasPrefix(path, "/health") || path == "/metrics" {
			log.Debug("HTTP request", fields...)
			return
		}
		log.Info("HTTP request", fields...)
	}
}

// RecoveryMiddleware turns panics into a logged 500 response.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("Panic recovered",
					logger.Any("error", err),
					logger.String("path", c.Request.URL.Path),
					logger.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "Internal server error",
					"code":    "INTERNAL_ERROR",
					"message": "An unexpected error occurred",
				})
			}
		}()

		c.Next()
	}
}

// RequestIDMiddleware propagates or generates a request ID and stores a
// request-scoped logger in the request context.
func RequestIDMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}

		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)

		reqLog := log.With(logger.String(RequestIDKey, requestID))
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))

		c.Next()
	}
}
