package middleware

import (
	"fmt"
	"net/http"

	"github.com/UnFik/api-saku-tagihan/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// DefaultBodyLimit is large enough for a few thousand bill numbers
const DefaultBodyLimit = 1 << 20

// BodyLimit rejects bodies over maxBytes with 413. A declared Content-Length is
// checked up front; chunked bodies fail while being bound, see HandleValidationError.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultBodyLimit
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			abortTooLarge(c, maxBytes)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func abortTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeRequestTooLarge,
		fmt.Sprintf("Request body exceeds %d bytes", limit),
		getRequestID(c),
	))
}
