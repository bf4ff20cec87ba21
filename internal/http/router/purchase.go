package router

import (
	"github.com/gin-gonic/gin"

	"chainvend.com/internal/handler"
)

func Purchase(api *gin.RouterGroup, h *handler.Purchase) {
	api.POST("/purchase", h.Create)
	api.GET("/expected-amount", h.ExpectedAmount)
	purchases := api.Group("/purchases")
	{
		purchases.GET("/:type", h.List)
		purchases.GET("/:type/:id", h.Get)
	}
}

func Catalog(api *gin.RouterGroup, h *handler.Catalog) {
	api.GET("/data-plans", h.DataPlans)
	electricity := api.Group("/electricity")
	{
		electricity.GET("/companies", h.Companies)
		electricity.GET("/verify", h.VerifyMeter)
	}
}
