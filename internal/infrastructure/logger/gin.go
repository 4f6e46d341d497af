package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ginRequestLogKey = "saku.request_logger"
	ginRequestIDKey  = "request_id"

	// route params that identify what a billing request works on
	billNumberParam = "billNumber"
	queueIDParam    = "id"
	queueRoutePart  = "/queue-trackers/"
)

// AccessLog logs one line per API call, tagged with the matched route and,
// for bill and tracker routes, the bill number or queue id. The tagged logger
// is put on the request context so L(ctx) in services carries the same fields.
func AccessLog(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestID := c.GetString(ginRequestIDKey)
		reqLog := base.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
		)
		c.Set(ginRequestLogKey, reqLog)

		ctx := WithContext(c.Request.Context(), reqLog)
		if requestID != "" {
			ctx = WithRequestID(ctx, requestID)
		}
		if n := c.Param(billNumberParam); n != "" {
			ctx = WithBillNumber(ctx, n)
		}
		if id := c.Param(queueIDParam); id != "" && strings.Contains(route, queueRoutePart) {
			ctx = WithQueueID(ctx, id)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(began)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("bytes_out", c.Writer.Size()),
		}
		if n := GetBillNumber(ctx); n != "" {
			fields = append(fields, zap.String("bill_number", n))
		}
		if id := GetQueueID(ctx); id != "" {
			fields = append(fields, zap.String("queue_id", id))
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		const msg = "API call served"
		switch {
		case status >= http.StatusInternalServerError:
			reqLog.Error(msg, fields...)
		case status >= http.StatusBadRequest:
			reqLog.Warn(msg, fields...)
		default:
			reqLog.Info(msg, fields...)
		}
	}
}

// PanicGuard turns a handler panic into a 500 in the API error envelope.
// A panic halfway through a confirmation leaves the bill unconfirmed, so the
// log carries the bill number for a manual retry.
func PanicGuard(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				base.Error("Handler panicked",
					zap.String("request_id", c.GetString(ginRequestIDKey)),
					zap.String("method", c.Request.Method),
					zap.String("route", c.FullPath()),
					zap.String("bill_number", c.Param(billNumberParam)),
					zap.Any("panic", r),
					zap.Stack("stacktrace"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   gin.H{"code": "INTERNAL_ERROR", "message": "Terjadi kesalahan pada server"},
				})
			}
		}()
		c.Next()
	}
}

// RequestLog returns the logger AccessLog attached to c, or a no-op logger
func RequestLog(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(ginRequestLogKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
