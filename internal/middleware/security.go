package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Security sets baseline response headers and caps request body size.
func Security(maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("X-Frame-Options", "DENY")
		header.Set("Referrer-Policy", "no-referrer")

		if maxBodyBytes > 0 {
			if c.Request.ContentLength > maxBodyBytes {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
					"error":   true,
					"code":    "PAYLOAD_TOO_LARGE",
					"message": "Request body exceeds the maximum allowed size.",
				})
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}

		c.Next()
	}
}
