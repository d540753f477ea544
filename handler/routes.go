package handler

import (
	"reply_templates/utils"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *TemplateHandler, hub *Hub) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 集合变更推送
	r.GET("/ws", HandleWebSocket(hub))

	// 导出文件可能较大，只对 API 压缩
	api := r.Group("/api/v1")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		// 模板
		api.GET("/templates", h.ListTemplates)
		api.GET("/templates/groups", h.ListGroups)
		api.GET("/templates/:id", h.GetTemplate)
		api.POST("/templates", h.CreateTemplate)
		api.POST("/templates/:id", h.UpdateTemplate)
		api.DELETE("/templates/:id", h.DeleteTemplate)
		api.POST("/templates/:id/translations", h.AddTranslation)
		api.POST("/templates/:id/render", h.RenderTemplate)
		api.DELETE("/groups/:baseId", h.DeleteGroup)

		// 全局变量
		api.GET("/variables", h.ListGlobalVariables)
		api.POST("/variables/sync", h.SyncGlobalVariables)
		api.POST("/variables/:name", h.UpdateGlobalVariable)

		// 导入导出与迁移
		api.GET("/export", h.Export)
		api.POST("/import", h.Import)
		api.POST("/migrations/run", h.RunMigrations)
	}
}
