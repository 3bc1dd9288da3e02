package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vedant1711/Lumina-ecommerce-project/internal/checkout"
	"github.com/vedant1711/Lumina-ecommerce-project/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// requestLogger guarda no contexto um logger com request_id e trace, e registra o acesso
func requestLogger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		var traceID, spanID string
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
			spanID = sc.SpanID().String()
		}
		logger := logging.WithTrace(base.With(zap.String("request_id", requestID)), traceID, spanID)
		c.Request = c.Request.WithContext(logging.ContextWithLogger(c.Request.Context(), logger))

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID, ok := c.Get("user_id"); ok {
			fields = append(fields, zap.Any("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

func recovery(base *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.FromContext(c.Request.Context(), base).Error("panic recovered",
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		writeError(c, http.StatusInternalServerError, string(checkout.KindInternal), "internal error", nil)
	})
}

func authError(c *gin.Context, err error) {
	writeError(c, http.StatusUnauthorized, string(checkout.KindAuth), err.Error(), nil)
}
