package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davicafu/logistrack/pkg/utils"
)

func RegisterOpsRoutes(r *gin.Engine, handler *OpsHandler) {
	r.GET("/health", handler.Health)
	r.GET("/stats", handler.Stats)

	r.NoRoute(func(c *gin.Context) {
		utils.SendError(c, http.StatusNotFound, "route not found")
	})
}
