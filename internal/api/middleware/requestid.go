package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dataview-hq/dataview/internal/shared/id"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with a correlation id, minting one when
// the client did not send its own. The id is echoed in the response
// header and stored in the gin context for log enrichment.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = id.NewRequestID().String()
		}
		c.Set("request_id", rid)
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}
