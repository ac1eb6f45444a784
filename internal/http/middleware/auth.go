package middleware

import (
	"net/http"
	"strings"

	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/quota"
	"lifescore_backend/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey       = "user_id"
	sessionIDHeader = "X-Session-ID"
)

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// JWT requires a valid bearer token and stores its user id under
// "user_id".
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing bearer token"})
			return
		}
		userID, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid token"})
			return
		}
		setUser(c, userID)
		c.Next()
	}
}

// OptionalJWT identifies the caller when a valid token is present and lets
// anonymous requests through otherwise.
func OptionalJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearer(c); token != "" {
			if userID, err := service.ParseJWT(token); err == nil {
				setUser(c, userID)
			}
		}
		c.Next()
	}
}

func setUser(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
	ctx := logger.ContextWith(c.Request.Context(), "user_id", userID)
	c.Request = c.Request.WithContext(ctx)
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(userIDKey)
	return id, id != ""
}

// Identity is what quotas are counted against: the user when known, then
// the X-Session-ID header, then the client address.
func Identity(c *gin.Context) quota.Identity {
	userID, _ := UserID(c)
	return quota.Identity{
		UserID:    userID,
		SessionID: c.GetHeader(sessionIDHeader),
		Addr:      c.ClientIP(),
	}
}
