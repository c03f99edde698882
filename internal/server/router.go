package server

import (
	"payments-core/internal/handler"
	"payments-core/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(send *handler.SendHandler, pair *handler.PairHandler) *gin.Engine {
	// 0. 初始化监控指标
	monitor.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware()) // 监控埋点

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler())) // 暴露给 Prometheus
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		sendGroup := api.Group("/send")
		{
			sendGroup.POST("", send.CreateSend)
			sendGroup.POST("/fee", send.EstimateFee)
			sendGroup.GET("/tx/:hash", send.GetTransaction)
			sendGroup.GET("/recent", send.RecentTransactions)
		}

		pairGroup := api.Group("/pair")
		{
			pairGroup.POST("/accept", pair.Accept)
			pairGroup.POST("/reject", pair.Reject)
			pairGroup.POST("/ping", pair.Ping)
			pairGroup.POST("/inbox/fetch", pair.FetchInbox)
		}
	}

	return r
}
