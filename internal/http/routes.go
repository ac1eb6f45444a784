package http

import (
	"lifescore_backend/internal/http/handlers"
	"lifescore_backend/internal/http/middleware"
	"lifescore_backend/internal/quota"
	"lifescore_backend/internal/service"
	"lifescore_backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Missions        *service.MissionService
	Ledger          *service.LedgerService
	Recommendations *service.RecommendationService
	Guard           *quota.Guard
	Hub             *ws.Hub
	DB              handlers.Pinger
	Store           handlers.DegradedReporter
	Version         string
	AllowedOrigin   string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := handlers.NewHandler(d.Missions, d.Ledger, d.Recommendations)
	healthHandler := handlers.NewHealthHandler(d.DB, d.Store, d.Version)

	r.Use(middleware.Metrics())

	// Health checks (no quota)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", ws.HandleWS(d.Hub, d.AllowedOrigin))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.OptionalJWT(), middleware.Quota(d.Guard, quota.ClassGeneral))
	registerAPIRoutes(v1, h, d.Guard)
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, guard *quota.Guard) {
	auth := middleware.JWT()

	// Missions
	api.GET("/missions", h.ListMissions)
	api.GET("/me/missions", auth, h.MyMissions)
	api.POST("/missions/:id/start", auth, h.StartMission)
	api.POST("/steps/:id/complete", auth, h.CompleteStep)
	api.POST("/missions/:id/complete", auth, middleware.Quota(guard, quota.ClassMissionCompletion), h.CompleteMission)
	api.POST("/user-missions/:id/settle", auth, h.SettleMission)

	// Rewards
	api.GET("/rewards", h.ListRewards)
	api.POST("/rewards/:id/redeem", auth, h.RedeemReward)
	api.GET("/me/rewards", auth, h.MyRewards)

	// Ledger
	api.GET("/me", auth, h.Me)
	api.GET("/me/lifescore/history", auth, h.LifeScoreHistory)
	api.GET("/me/transactions", auth, h.Transactions)
	api.GET("/leaderboard", h.GetLeaderboard)

	// AI quota is checked inside the service
	api.GET("/recommendations", auth, h.GetRecommendations)
}
