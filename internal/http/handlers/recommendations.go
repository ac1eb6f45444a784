package handlers

import (
	"net/http"

	"lifescore_backend/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetRecommendations(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	recs, err := h.Recommendations.Recommend(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}
