package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"basegraph.app/roster/internal/http/handler"
)

type RouterConfig struct {
	Models *handler.ModelHandler
	Admin  *handler.AdminHandler
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	HealthRouter(router)

	v1 := router.Group("/api/v1")
	{
		ModelRouter(v1.Group("/models"), cfg.Models)
	}

	AdminRouter(router.Group("/admin"), cfg.Admin)
}

// HealthRouter registers the endpoints every roster process serves.
func HealthRouter(router gin.IRoutes) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
