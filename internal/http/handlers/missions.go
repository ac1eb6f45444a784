package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListMissions returns the active mission catalog.
func (h *Handler) ListMissions(c *gin.Context) {
	missions, err := h.Missions.ListMissions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"missions": missions})
}

// MyMissions returns the caller's missions with their steps.
func (h *Handler) MyMissions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ums, err := h.Missions.UserMissions(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"missions": ums})
}

func (h *Handler) StartMission(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	um, err := h.Missions.StartMission(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, um)
}

func (h *Handler) CompleteStep(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	step, err := h.Missions.CompleteStep(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

type completeMissionRequest struct {
	CompletionData map[string]interface{} `json:"completion_data"`
}

// CompleteMission accepts an optional body with completion_data.
func (h *Handler) CompleteMission(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req completeMissionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "invalid body")
			return
		}
	}

	um, err := h.Missions.CompleteMission(c.Request.Context(), userID, c.Param("id"), req.CompletionData)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, um)
}

// SettleMission retries crediting a completed mission of the caller.
func (h *Handler) SettleMission(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	settled, err := h.Missions.SettleForUser(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settled": settled})
}
