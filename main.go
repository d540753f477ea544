package main

import (
	"context"
	"log"

	"reply_templates/config"
	"reply_templates/handler"
	"reply_templates/metrics"
	"reply_templates/middleware"
	"reply_templates/service"
	"reply_templates/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg := config.Load()

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化存储
	store, closeStore, err := utils.OpenStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()

	metrics.InitAPIMetrics()
	metrics.InitTemplateMetrics()

	templateSvc := service.NewTemplateService(store, logger)

	// 变更推送 Hub，redis 后端时跨实例转发
	hub := handler.NewHub(utils.GetRedis(), logger)
	hub.StartPubSub()
	defer hub.StopPubSub()
	templateSvc.SetChangeNotifier(hub)

	ctx := context.Background()

	// 启动时执行迁移（可重入，无待迁移数据时不写入）
	if _, err := templateSvc.RunMigrations(ctx); err != nil {
		logger.Error("template migration failed, will retry on next start", zap.Error(err))
	}

	// 初始化默认模板
	if cfg.SeedFile != "" {
		seed, err := service.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			logger.Warn("failed to load seed file", zap.String("path", cfg.SeedFile), zap.Error(err))
		} else if _, err := templateSvc.InitDefaultTemplates(ctx, seed); err != nil {
			logger.Warn("failed to init default templates", zap.Error(err))
		}
	}

	if _, err := templateSvc.SyncGlobalVariables(ctx); err != nil {
		logger.Warn("failed to sync global variables", zap.Error(err))
	}

	templateHandler := handler.NewTemplateHandler(templateSvc, logger)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(middleware.ErrorHandlerMiddleware(logger))
	r.Use(middleware.MetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:           cfg.CORSAllowOrigins,
		AllowBrowserExtensions: true,
		AllowMethods:           []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:           []string{"Origin", "Content-Type"},
		ExposeHeaders:          []string{"Content-Length", "Content-Disposition"},
	}))

	handler.RegisterRoutes(r, templateHandler, hub)

	logger.Info("reply_templates service starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreBackend))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
