package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/config"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/handler"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/middleware"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, taskHandler *handler.TaskHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "QA Extraction API is running",
		})
	})

	// API 路由组
	api := r.Group("/api/v1")
	{
		tasks := api.Group("/tasks")
		{
			// 上传接口做按 IP 限流，避免单个客户端打满大模型配额
			tasks.POST("", middleware.RateLimit(cfg.Task.UploadLimit, cfg.UploadWindow()), taskHandler.Submit)

			tasks.GET("/:id/status", taskHandler.Status)
			tasks.GET("/:id/result", taskHandler.Result)
			tasks.GET("/:id/download", taskHandler.Download)
			tasks.POST("/:id/selection", taskHandler.Selection)
			tasks.GET("/:id/download_final", taskHandler.DownloadFinal)
		}
	}

	return r
}
