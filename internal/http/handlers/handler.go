package handlers

import (
	"strconv"

	"lifescore_backend/internal/http/middleware"
	"lifescore_backend/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Missions        *service.MissionService
	Ledger          *service.LedgerService
	Recommendations *service.RecommendationService
}

func NewHandler(missions *service.MissionService, ledger *service.LedgerService, recs *service.RecommendationService) *Handler {
	return &Handler{
		Missions:        missions,
		Ledger:          ledger,
		Recommendations: recs,
	}
}

// requireUser returns the caller's id, answering 401 when there is none.
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeUnauthorized(c)
		return "", false
	}
	return userID, true
}

// limitParam reads ?limit=, bounded to [1, max].
func limitParam(c *gin.Context, def, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
