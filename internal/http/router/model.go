package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/roster/internal/http/handler"
)

func ModelRouter(rg *gin.RouterGroup, h *handler.ModelHandler) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Update)
}
