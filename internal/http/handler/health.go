package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetingintel/server/internal/tenantdb"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	Control  *pgxpool.Pool
	Registry *tenantdb.Registry
	Service  string
}

// NewHealthHandler creates the probe handlers.
func NewHealthHandler(control *pgxpool.Pool, registry *tenantdb.Registry, service string) *HealthHandler {
	return &HealthHandler{Control: control, Registry: registry, Service: service}
}

// Health reports basic service identity.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"service":      h.Service,
		"tenant_pools": h.Registry.Len(),
	})
}

// Live always succeeds while the process is running.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks the control store before reporting ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.Control.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "reason": "control store unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
