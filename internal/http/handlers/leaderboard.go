package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard returns the top users by LifeScore, then XP.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	top, err := h.Ledger.Leaderboard(c.Request.Context(), limitParam(c, 100, 100))
	if err != nil {
		writeError(c, err)
		return
	}

	entries := make([]gin.H, 0, len(top))
	for i, u := range top {
		entries = append(entries, gin.H{
			"rank":      i + 1,
			"user_id":   u.ID,
			"lifescore": u.LifeScore,
			"xp":        u.XP,
			"level":     u.Level,
		})
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
