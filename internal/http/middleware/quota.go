package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/quota"

	"github.com/gin-gonic/gin"
)

// Quota counts the request against class before the handler runs. Over
// the limit the handler is never reached and the caller gets 429 with a
// Retry-After. A counter store failure is a 503, not a free pass.
func Quota(guard *quota.Guard, class quota.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := guard.Check(c.Request.Context(), Identity(c), class)

		var qe *quota.QuotaExceededError
		switch {
		case errors.As(err, &qe):
			retry := int64(math.Ceil(qe.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
			c.Header("X-Quota-Limit", strconv.FormatInt(qe.Limit, 10))
			c.Header("X-Quota-Remaining", "0")
			c.Header("X-Quota-Reset", strconv.FormatInt(qe.ResetAt.Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too_many_requests",
				"message":     "quota exceeded",
				"class":       string(qe.Class),
				"retry_after": retry,
				"reset_at":    qe.ResetAt.UTC().Format(time.RFC3339),
			})
			return
		case err != nil:
			logger.FromContext(c.Request.Context()).Error("quota check failed", "class", class, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "storage_unavailable",
				"message": "try again later",
			})
			return
		}

		c.Header("X-Quota-Limit", strconv.FormatInt(d.Limit, 10))
		c.Header("X-Quota-Remaining", strconv.FormatInt(d.Remaining, 10))
		c.Header("X-Quota-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		c.Next()
	}
}
