package router

import (
	"github.com/gin-gonic/gin"

	"chainvend.com/internal/handler"
)

func Wallet(api *gin.RouterGroup, h *handler.Wallet) {
	wallets := api.Group("/wallets")
	{
		wallets.POST("/provision", h.Provision)
		wallets.GET("", h.List)
		wallets.POST("/:id/refresh", h.RefreshBalance)
		wallets.GET("/starknet/eligibility", h.StarknetEligibility)
		wallets.POST("/starknet/deploy", h.StarknetDeploy)
	}
}

func Merchant(api *gin.RouterGroup, h *handler.Merchant) {
	payments := api.Group("/merchant-payments")
	{
		payments.POST("", h.Create)
		payments.GET("/:id", h.Get)
		payments.PUT("/:id/tx", h.SubmitTx)
	}
}
