package handler

import (
	"errors"
	"io"
	"net/http"

	"reply_templates/model"
	"reply_templates/service"
	"reply_templates/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TemplateHandler struct {
	templateSvc *service.TemplateService
	log         *zap.Logger
}

func NewTemplateHandler(templateSvc *service.TemplateService, log *zap.Logger) *TemplateHandler {
	return &TemplateHandler{
		templateSvc: templateSvc,
		log:         log,
	}
}

// CreateTemplateRequest 新建模板请求
type CreateTemplateRequest struct {
	service.TemplateInput
	NewGroup bool `json:"new_group"` // 总是新建分组，不按同名推断
}

// AddTranslationRequest 添加翻译请求
type AddTranslationRequest struct {
	Language model.Language `json:"language" binding:"required"`
	Content  string         `json:"content" binding:"required"`
}

// RenderRequest 渲染请求
type RenderRequest struct {
	Values map[string]string `json:"values"`
}

// ListTemplates 获取所有模板
// GET /api/v1/templates
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.templateSvc.ListTemplates(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"templates": templates})
}

// ListGroups 获取按 baseId 分组的模板
// GET /api/v1/templates/groups
func (h *TemplateHandler) ListGroups(c *gin.Context) {
	groups, err := h.templateSvc.GetTemplateGroups(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"groups": groups})
}

// GetTemplate 获取单个模板
// GET /api/v1/templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.templateSvc.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if tpl == nil {
		utils.NotFound(c, "template not found")
		return
	}
	utils.SuccessResponse(c, gin.H{"template": tpl})
}

// CreateTemplate 新建模板
// POST /api/v1/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request")
		return
	}

	var opts []service.AddOption
	if req.NewGroup {
		opts = append(opts, service.AsNewGroup())
	}

	tpl, err := h.templateSvc.AddTemplate(c.Request.Context(), req.TemplateInput, opts...)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"template": tpl})
}

// AddTranslation 为模板所在分组添加语言版本
// POST /api/v1/templates/:id/translations
func (h *TemplateHandler) AddTranslation(c *gin.Context) {
	var req AddTranslationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request")
		return
	}

	ctx := c.Request.Context()
	base, err := h.templateSvc.GetTemplate(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if base == nil {
		utils.NotFound(c, "template not found")
		return
	}

	tpl, err := h.templateSvc.AddTranslation(ctx, base, req.Language, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"template": tpl})
}

// UpdateTemplate 更新模板
// POST /api/v1/templates/:id
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var update service.TemplateUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		utils.BadRequest(c, "Invalid request")
		return
	}

	tpl, err := h.templateSvc.UpdateTemplate(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if tpl == nil {
		utils.NotFound(c, "template not found")
		return
	}
	utils.SuccessResponse(c, gin.H{"template": tpl})
}

// DeleteTemplate 删除模板
// DELETE /api/v1/templates/:id
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	deleted, err := h.templateSvc.DeleteTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !deleted {
		utils.NotFound(c, "template not found")
		return
	}
	utils.SuccessWithMessage(c, "Template deleted successfully", nil)
}

// DeleteGroup 删除整个分组（所有语言版本）
// DELETE /api/v1/groups/:baseId
func (h *TemplateHandler) DeleteGroup(c *gin.Context) {
	deleted, err := h.templateSvc.DeleteTemplateGroup(c.Request.Context(), c.Param("baseId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !deleted {
		utils.NotFound(c, "template group not found")
		return
	}
	utils.SuccessWithMessage(c, "Template group deleted successfully", nil)
}

// RenderTemplate 渲染模板
// POST /api/v1/templates/:id/render
func (h *TemplateHandler) RenderTemplate(c *gin.Context) {
	var req RenderRequest
	// 允许空 body
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.BadRequest(c, "Invalid request")
		return
	}

	result, err := h.templateSvc.RenderTemplate(c.Request.Context(), c.Param("id"), req.Values)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if result == nil {
		utils.NotFound(c, "template not found")
		return
	}
	utils.SuccessResponse(c, result)
}

// ListGlobalVariables 获取全局变量表，读取前先与模板中的变量对齐
// GET /api/v1/variables
func (h *TemplateHandler) ListGlobalVariables(c *gin.Context) {
	vars, err := h.templateSvc.SyncGlobalVariables(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"variables": vars})
}

// SyncGlobalVariables 根据模板内容补全全局变量表
// POST /api/v1/variables/sync
func (h *TemplateHandler) SyncGlobalVariables(c *gin.Context) {
	vars, err := h.templateSvc.SyncGlobalVariables(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"variables": vars})
}

// UpdateGlobalVariable 更新（或新建）全局变量
// POST /api/v1/variables/:name
func (h *TemplateHandler) UpdateGlobalVariable(c *gin.Context) {
	var v model.Variable
	if err := c.ShouldBindJSON(&v); err != nil {
		utils.BadRequest(c, "Invalid request")
		return
	}
	v.Name = c.Param("name")

	updated, err := h.templateSvc.UpdateGlobalVariable(c.Request.Context(), v)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"variable": updated})
}

// Export 导出所有数据
// GET /api/v1/export
func (h *TemplateHandler) Export(c *gin.Context) {
	envelope, err := h.templateSvc.ExportData(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="templates-export.json"`)
	c.JSON(http.StatusOK, envelope)
}

// Import 导入数据，?merge=true 时与现有数据合并
// POST /api/v1/import
func (h *TemplateHandler) Import(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		utils.BadRequest(c, "Invalid request")
		return
	}

	result, err := h.templateSvc.ImportData(c.Request.Context(), raw, service.ImportOptions{
		Merge: c.Query("merge") == "true",
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// RunMigrations 手动执行迁移（启动时已自动执行）
// POST /api/v1/migrations/run
func (h *TemplateHandler) RunMigrations(c *gin.Context) {
	reports, err := h.templateSvc.RunMigrations(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"migrations": reports})
}

// writeError 按错误类型映射 HTTP 状态码
func (h *TemplateHandler) writeError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var duplicateErr *service.DuplicateLanguageError
	var importErr *service.ImportFormatError

	switch {
	case errors.As(err, &validationErr):
		utils.ErrorWithData(c, http.StatusBadRequest, err.Error(), gin.H{"fields": validationErr.Fields})
	case errors.As(err, &duplicateErr):
		utils.ErrorWithData(c, http.StatusConflict, err.Error(), gin.H{
			"language": duplicateErr.Language,
			"name":     duplicateErr.Name,
		})
	case errors.As(err, &importErr):
		utils.BadRequest(c, err.Error())
	default:
		h.log.Error("template request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.InternalServerError(c, err.Error())
	}
}
