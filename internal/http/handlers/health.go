package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is the durable store as far as health checks care.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DegradedReporter tells whether requests are being served from the
// in-memory fallback.
type DegradedReporter interface {
	Degraded() bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db        Pinger
	store     DegradedReporter
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. db may be nil when the
// service runs on the in-memory store only.
func NewHealthHandler(db Pinger, store DegradedReporter, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		store:     store,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness returns simple alive status (for k8s liveness probe)
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness reports the durable store and fallback state. The service
// keeps answering on the fallback, so a degraded store is still ready.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	switch {
	case h.db == nil:
		checks["database"] = "not configured"
	case h.db.Ping(ctx) != nil:
		checks["database"] = "unreachable"
	default:
		checks["database"] = "healthy"
	}

	status := "healthy"
	if h.store.Degraded() {
		status = "degraded"
		checks["storage"] = "in-memory fallback"
	} else {
		checks["storage"] = "durable"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	checks["memory_alloc_mb"] = formatMB(m.Alloc)

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// Health is a combined endpoint for basic health checks
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	if h.store.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"version":  h.version,
		"degraded": h.store.Degraded(),
	})
}

func formatMB(bytes uint64) string {
	mb := float64(bytes) / 1024 / 1024
	return fmt.Sprintf("%.2f", mb)
}
