package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Me returns the caller's account, creating it on first contact.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	user, err := h.Ledger.Account(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) LifeScoreHistory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	entries, err := h.Ledger.History(c.Request.Context(), userID, limitParam(c, 50, 200))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func (h *Handler) Transactions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	txs, err := h.Ledger.Transactions(c.Request.Context(), userID, limitParam(c, 100, 500))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
