package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/quota"
	"lifescore_backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type apiError struct {
	status  int
	code    string
	message string
}

var knownErrors = []struct {
	err error
	apiError
}{
	{domain.ErrMissionAlreadyActive, apiError{http.StatusConflict, "mission_already_active", "mission is already active"}},
	{domain.ErrMissionNotActive, apiError{http.StatusConflict, "mission_not_active", "mission is not active"}},
	{domain.ErrStepNotFound, apiError{http.StatusNotFound, "step_not_found", "step not found"}},
	{domain.ErrMissionNotFound, apiError{http.StatusNotFound, "mission_not_found", "mission not found"}},
	{domain.ErrUserMissionNotFound, apiError{http.StatusNotFound, "mission_not_found", "mission not found"}},
	{domain.ErrRewardNotFound, apiError{http.StatusNotFound, "reward_not_found", "reward not found"}},
	{domain.ErrUserNotFound, apiError{http.StatusNotFound, "user_not_found", "user not found"}},
	{domain.ErrInsufficientCoins, apiError{http.StatusPaymentRequired, "insufficient_coins", "not enough coins"}},
}

// writeError maps err to a status and a {"error","message"} body. Nothing
// from the underlying error text reaches the client.
func writeError(c *gin.Context, err error) {
	var qe *quota.QuotaExceededError
	if errors.As(err, &qe) {
		retry := int64(math.Ceil(qe.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.FormatInt(retry, 10))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "too_many_requests",
			"message":     "quota exceeded",
			"class":       string(qe.Class),
			"retry_after": retry,
			"reset_at":    qe.ResetAt.UTC().Format(time.RFC3339),
		})
		return
	}

	for _, k := range knownErrors {
		if errors.Is(err, k.err) {
			c.AbortWithStatusJSON(k.status, gin.H{"error": k.code, "message": k.message})
			return
		}
	}

	log := logger.FromContext(c.Request.Context())
	if storage.IsStorageError(err) {
		log.Error("storage unavailable", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable", "message": "try again later"})
		return
	}

	log.Error("request failed", "path", c.FullPath(), "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal error"})
}

func writeBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": message})
}

func writeUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "authentication required"})
}
