package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(svcs Services, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	h := NewHandler(svcs, logger)

	api := r.Group("/api/v1")
	{
		// 公开接口：前台展示与曝光点击上报
		api.GET("/sponsored", h.ListSponsored)
		api.POST("/campaigns/:id/track", h.TrackInteraction)

		// 支付网关回调，不经过用户鉴权
		api.POST("/wallet/deposits/callback", h.DepositCallback)

		seller := api.Group("", CallerMiddleware())
		{
			campaigns := seller.Group("/campaigns")
			{
				campaigns.POST("", h.CreateCampaign)
				campaigns.GET("", h.ListCampaigns)
				campaigns.GET("/:id", h.GetCampaign)
				campaigns.PUT("/:id", h.UpdateCampaign)
				campaigns.POST("/:id/activate", h.ActivateCampaign)
				campaigns.POST("/:id/cancel", h.CancelCampaign)
				campaigns.GET("/:id/analytics", h.GetAnalytics)
				campaigns.GET("/:id/transactions", h.GetLedger)
			}

			wallet := seller.Group("/wallet")
			{
				wallet.GET("", h.GetWallet)
				wallet.GET("/transactions", h.ListTransactions)
				wallet.POST("/deposits", h.InitiateDeposit)
				wallet.POST("/withdrawals", h.Withdraw)
			}
		}

		admin := api.Group("/admin")
		{
			admin.GET("/scheduler", h.ListJobs)
			admin.POST("/scheduler/:job", h.TriggerJob)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
