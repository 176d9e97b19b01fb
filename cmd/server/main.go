package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/api"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/config"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/handler"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/repository"
	"github.com/Mercury528/QA-extraction-from-work-orders-for-RAG/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	level, err := log.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// 初始化任务注册表
	store := repository.NewMemoryTaskStore(cfg.TaskTTL(), cfg.SweepInterval())
	defer store.Close()

	// 初始化服务与路由
	taskService := service.NewTaskService(cfg, store)
	router := api.SetupRouter(cfg, handler.NewTaskHandler(taskService))

	// 启动服务器
	log.Infof("Server starting on %s", cfg.App.Host)
	if err := router.Run(cfg.App.Host); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
