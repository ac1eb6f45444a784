package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListRewards(c *gin.Context) {
	rewards, err := h.Ledger.Rewards(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

func (h *Handler) RedeemReward(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ur, err := h.Ledger.RedeemReward(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ur)
}

func (h *Handler) MyRewards(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	rewards, err := h.Ledger.UserRewards(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}
