package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/roster/internal/http/handler"
)

// AdminRouter sets up operator routes. Every route requires the admin API key.
func AdminRouter(rg *gin.RouterGroup, h *handler.AdminHandler) {
	admin := rg.Group("")
	admin.Use(h.RequireAdminAPIKey())
	{
		admin.POST("/events", h.PublishEvent)

		admin.GET("/subscriptions", h.ListSubscriptions)
		admin.POST("/subscriptions", h.Subscribe)
		admin.DELETE("/subscriptions/:queue", h.Unsubscribe)

		admin.GET("/dlq", h.ListDeadLetters)
		admin.POST("/dlq/redrive", h.Redrive)
	}
}
