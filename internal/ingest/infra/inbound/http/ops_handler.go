package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/logistrack/internal/ingest/application"
	"github.com/davicafu/logistrack/pkg/utils"
)

// Check comprueba una dependencia (Redis, base de datos...).
type Check func(ctx context.Context) error

// OpsHandler expone el estado del consumidor; no es una API de consulta de órdenes.
type OpsHandler struct {
	stats  *application.Stats
	checks map[string]Check
}

func NewOpsHandler(stats *application.Stats, checks map[string]Check) *OpsHandler {
	return &OpsHandler{stats: stats, checks: checks}
}

// Health endpoint GET /health
func (h *OpsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failing": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats endpoint GET /stats
func (h *OpsHandler) Stats(c *gin.Context) {
	utils.SendSuccess(c, http.StatusOK, h.stats.Snapshot())
}
