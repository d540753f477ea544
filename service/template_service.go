package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"reply_templates/metrics"
	"reply_templates/model"
	"reply_templates/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeNotifier 集合写入成功后的回调（WebSocket 推送等）
type ChangeNotifier interface {
	CollectionChanged(key, op string)
}

// TemplateInput 新建模板的输入
type TemplateInput struct {
	Name      string           `json:"name" yaml:"name"`
	Category  string           `json:"category" yaml:"category"`
	Content   string           `json:"content" yaml:"content"`
	Language  model.Language   `json:"language,omitempty" yaml:"language,omitempty"`
	Variables []model.Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// TemplateUpdate 部分更新，nil 字段不修改
type TemplateUpdate struct {
	Name      *string           `json:"name,omitempty"`
	Category  *string           `json:"category,omitempty"`
	Content   *string           `json:"content,omitempty"`
	Language  *model.Language   `json:"language,omitempty"`
	Variables *[]model.Variable `json:"variables,omitempty"`
}

type addOptions struct {
	newGroup bool
}

// AddOption AddTemplate 选项
type AddOption func(*addOptions)

// AsNewGroup 总是新建分组，不按同名模板推断 baseId
func AsNewGroup() AddOption {
	return func(o *addOptions) {
		o.newGroup = true
	}
}

// TemplateService 模板集合的唯一写入方
//
// 所有写操作都是"整集合读取 -> 修改 -> 整集合写回"。同一进程内由 mu 串行化；
// 跨进程没有并发控制，后写者覆盖先写者。
type TemplateService struct {
	store    storage.CollectionStore
	log      *zap.Logger
	notifier ChangeNotifier

	mu    sync.Mutex
	now   func() int64
	newID func() string
}

func NewTemplateService(store storage.CollectionStore, log *zap.Logger) *TemplateService {
	return &TemplateService{
		store: store,
		log:   log,
		now: func() int64 {
			return time.Now().UnixMilli()
		},
		newID: uuid.NewString,
	}
}

// SetChangeNotifier 设置变更通知器
func (s *TemplateService) SetChangeNotifier(notifier ChangeNotifier) {
	s.notifier = notifier
}

// ListTemplates 获取所有模板
func (s *TemplateService) ListTemplates(ctx context.Context) ([]model.Template, error) {
	return s.loadTemplates(ctx)
}

// GetTemplate 获取单个模板，不存在时返回 (nil, nil)
func (s *TemplateService) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(templates, id); i >= 0 {
		return &templates[i], nil
	}
	return nil, nil
}

// GetTemplateGroups 按 baseId 分组，每次调用重新计算
func (s *TemplateService) GetTemplateGroups(ctx context.Context) ([]model.TemplateGroup, error) {
	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}
	return GroupTemplates(templates), nil
}

// AddTemplate 新建模板
//
// 默认沿用同名模板的 baseId（同名即视为翻译）；传入 AsNewGroup() 则总是新建分组。
// 分组内已有同语言模板时返回 DuplicateLanguageError，不写入任何数据。
func (s *TemplateService) AddTemplate(ctx context.Context, input TemplateInput, opts ...AddOption) (tpl *model.Template, err error) {
	defer func() { observe("add", err) }()

	if err := validateInput(input); err != nil {
		return nil, err
	}

	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	baseID := id
	if !o.newGroup {
		for i := range templates {
			if templates[i].Name == input.Name {
				baseID = templates[i].GroupID()
				break
			}
		}
	}

	lang := input.Language.OrDefault()
	if hasLanguage(templates, baseID, lang, "") {
		return nil, &DuplicateLanguageError{Language: lang, Name: input.Name}
	}

	variables := input.Variables
	if variables == nil {
		variables = GenerateVariableObjects(input.Content)
	}

	now := s.now()
	created := model.Template{
		ID:         id,
		BaseID:     baseID,
		Name:       input.Name,
		Category:   input.Category,
		Content:    input.Content,
		Variables:  variables,
		Language:   lang,
		IsRichText: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}.Clone()

	templates = append(templates, created)
	if err := s.saveTemplates(ctx, templates, "add"); err != nil {
		return nil, err
	}

	s.log.Info("template added",
		zap.String("id", created.ID),
		zap.String("base_id", created.BaseID),
		zap.String("language", string(created.Language)))
	return &created, nil
}

// AddTranslation 为已有模板所在分组添加一种语言版本，name/category/variables 复制自 base
func (s *TemplateService) AddTranslation(ctx context.Context, base *model.Template, language model.Language, content string) (tpl *model.Template, err error) {
	defer func() { observe("add_translation", err) }()

	var fields []string
	if base == nil {
		fields = append(fields, "base template is required")
	}
	if !language.Valid() {
		fields = append(fields, fmt.Sprintf("language must be one of EN, FR, DE (got %q)", language))
	}
	if strings.TrimSpace(content) == "" {
		fields = append(fields, "content is required")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}

	baseID := base.GroupID()
	if hasLanguage(templates, baseID, language, "") {
		return nil, &DuplicateLanguageError{Language: language, Name: base.Name}
	}

	now := s.now()
	created := model.Template{
		ID:         s.newID(),
		BaseID:     baseID,
		Name:       base.Name,
		Category:   base.Category,
		Content:    content,
		Variables:  base.Variables,
		Language:   language,
		IsRichText: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}.Clone()

	templates = append(templates, created)
	if err := s.saveTemplates(ctx, templates, "add_translation"); err != nil {
		return nil, err
	}

	s.log.Info("translation added",
		zap.String("id", created.ID),
		zap.String("base_id", baseID),
		zap.String("language", string(language)))
	return &created, nil
}

// UpdateTemplate 更新模板，不存在时返回 (nil, nil)
//
// 修改 name 或 category 时同步到同一 baseId 下的其他语言版本。
// 内容变化且未提供 variables 时，按新内容重建变量列表并保留已有元数据。
func (s *TemplateService) UpdateTemplate(ctx context.Context, id string, update TemplateUpdate) (tpl *model.Template, err error) {
	defer func() { observe("update", err) }()

	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}

	i := indexOf(templates, id)
	if i < 0 {
		return nil, nil
	}
	current := &templates[i]
	baseID := current.GroupID()

	if update.Language != nil {
		lang := update.Language.OrDefault()
		if lang != current.EffectiveLanguage() && hasLanguage(templates, baseID, lang, id) {
			name := current.Name
			if update.Name != nil {
				name = *update.Name
			}
			return nil, &DuplicateLanguageError{Language: lang, Name: name}
		}
		current.Language = lang
	}
	if update.Name != nil {
		current.Name = *update.Name
	}
	if update.Category != nil {
		current.Category = *update.Category
	}
	if update.Content != nil {
		current.Content = *update.Content
		if update.Variables == nil {
			current.Variables = MergeVariables(current.Variables, current.Content)
		}
	}
	if update.Variables != nil {
		current.Variables = *update.Variables
	}

	now := s.now()
	if current.BaseID == "" {
		current.BaseID = current.ID
	}
	current.IsRichText = true
	current.UpdatedAt = now
	*current = current.Clone()

	if update.Name != nil || update.Category != nil {
		for j := range templates {
			if j == i || templates[j].GroupID() != baseID {
				continue
			}
			if update.Name != nil {
				templates[j].Name = current.Name
			}
			if update.Category != nil {
				templates[j].Category = current.Category
			}
			templates[j].UpdatedAt = now
		}
	}

	if err := s.saveTemplates(ctx, templates, "update"); err != nil {
		return nil, err
	}

	updated := *current
	return &updated, nil
}

// DeleteTemplate 删除单个模板，返回是否删除了记录
func (s *TemplateService) DeleteTemplate(ctx context.Context, id string) (deleted bool, err error) {
	defer func() { observe("delete", err) }()

	return s.removeWhere(ctx, "delete", func(t *model.Template) bool {
		return t.ID == id
	})
}

// DeleteTemplateGroup 删除同一 baseId 下的所有模板
func (s *TemplateService) DeleteTemplateGroup(ctx context.Context, baseID string) (deleted bool, err error) {
	defer func() { observe("delete_group", err) }()

	return s.removeWhere(ctx, "delete_group", func(t *model.Template) bool {
		return t.GroupID() == baseID
	})
}

func (s *TemplateService) removeWhere(ctx context.Context, op string, match func(*model.Template) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return false, err
	}

	kept := templates[:0]
	for i := range templates {
		if !match(&templates[i]) {
			kept = append(kept, templates[i])
		}
	}
	removed := len(templates) - len(kept)
	if removed == 0 {
		return false, nil
	}

	if err := s.saveTemplates(ctx, kept, op); err != nil {
		return false, err
	}
	s.log.Info("templates deleted", zap.String("op", op), zap.Int("count", removed))
	return true, nil
}

// GetGlobalVariables 获取全局变量表
func (s *TemplateService) GetGlobalVariables(ctx context.Context) ([]model.Variable, error) {
	return s.loadGlobalVariables(ctx)
}

// SaveGlobalVariables 整体替换全局变量表
func (s *TemplateService) SaveGlobalVariables(ctx context.Context, vars []model.Variable) (err error) {
	defer func() { observe("save_global_variables", err) }()

	if err := validateVariables(vars); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveGlobalVariables(ctx, vars, "save")
}

// UpdateGlobalVariable 按名称更新全局变量，不存在则创建
func (s *TemplateService) UpdateGlobalVariable(ctx context.Context, v model.Variable) (updated *model.Variable, err error) {
	defer func() { observe("update_global_variable", err) }()

	if err := validateVariables([]model.Variable{v}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vars, err := s.loadGlobalVariables(ctx)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range vars {
		if vars[i].Name == v.Name {
			vars[i] = v
			found = true
			break
		}
	}
	if !found {
		vars = append(vars, v)
	}

	if err := s.saveGlobalVariables(ctx, vars, "update"); err != nil {
		return nil, err
	}
	return &v, nil
}

// RunMigrations 依次执行 baseId 迁移和富文本迁移，有变更时才写回
func (s *TemplateService) RunMigrations(ctx context.Context) ([]MigrationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, &MigrationError{Migration: "load", Err: err}
	}

	migrated, baseReport := MigrateBaseIDs(templates)
	migrated, richReport := MigrateRichText(migrated)
	reports := []MigrationReport{baseReport, richReport}

	if baseReport.Affected == 0 && richReport.Affected == 0 {
		return reports, nil
	}

	if err := s.saveTemplates(ctx, migrated, "migrate"); err != nil {
		return nil, &MigrationError{Migration: "save", Err: err}
	}

	for _, r := range reports {
		metrics.MigratedRecordsTotal.WithLabelValues(r.Migration).Add(float64(r.Affected))
		s.log.Info("migration applied", zap.String("migration", r.Migration), zap.Int("affected", r.Affected))
		for _, o := range r.Renamed() {
			s.log.Warn("template renamed to resolve language collision",
				zap.String("id", o.TemplateID),
				zap.String("previous_name", o.PreviousName),
				zap.String("name", o.Name))
		}
	}
	return reports, nil
}

func (s *TemplateService) loadTemplates(ctx context.Context) ([]model.Template, error) {
	data, err := s.store.LoadCollection(ctx, model.CollectionTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	templates := []model.Template{}
	if len(data) == 0 {
		return templates, nil
	}
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}
	return templates, nil
}

func (s *TemplateService) saveTemplates(ctx context.Context, templates []model.Template, op string) error {
	if templates == nil {
		templates = []model.Template{}
	}
	data, err := json.Marshal(templates)
	if err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}
	if err := s.store.SaveCollection(ctx, model.CollectionTemplates, data); err != nil {
		return fmt.Errorf("failed to save templates: %w", err)
	}
	s.notify(model.CollectionTemplates, op)
	return nil
}

func (s *TemplateService) loadGlobalVariables(ctx context.Context) ([]model.Variable, error) {
	data, err := s.store.LoadCollection(ctx, model.CollectionGlobalVariables)
	if err != nil {
		return nil, fmt.Errorf("failed to load global variables: %w", err)
	}
	vars := []model.Variable{}
	if len(data) == 0 {
		return vars, nil
	}
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("failed to decode global variables: %w", err)
	}
	return vars, nil
}

func (s *TemplateService) saveGlobalVariables(ctx context.Context, vars []model.Variable, op string) error {
	if vars == nil {
		vars = []model.Variable{}
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("failed to encode global variables: %w", err)
	}
	if err := s.store.SaveCollection(ctx, model.CollectionGlobalVariables, data); err != nil {
		return fmt.Errorf("failed to save global variables: %w", err)
	}
	s.notify(model.CollectionGlobalVariables, op)
	return nil
}

func (s *TemplateService) notify(key, op string) {
	if s.notifier != nil {
		s.notifier.CollectionChanged(key, op)
	}
}

func observe(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.TemplateOperationsTotal.WithLabelValues(op, status).Inc()
}

func indexOf(templates []model.Template, id string) int {
	for i := range templates {
		if templates[i].ID == id {
			return i
		}
	}
	return -1
}

// hasLanguage 分组 baseID 中是否已有该语言（excludeID 为排除的记录）
func hasLanguage(templates []model.Template, baseID string, lang model.Language, excludeID string) bool {
	for i := range templates {
		t := &templates[i]
		if t.ID == excludeID {
			continue
		}
		if t.GroupID() == baseID && t.EffectiveLanguage() == lang {
			return true
		}
	}
	return false
}

func validateInput(input TemplateInput) error {
	var fields []string
	if strings.TrimSpace(input.Name) == "" {
		fields = append(fields, "name is required")
	}
	if strings.TrimSpace(input.Category) == "" {
		fields = append(fields, "category is required")
	}
	if strings.TrimSpace(input.Content) == "" {
		fields = append(fields, "content is required")
	}
	if input.Language != "" && !input.Language.Valid() {
		fields = append(fields, fmt.Sprintf("language must be one of EN, FR, DE (got %q)", input.Language))
	}
	if err := validateVariables(input.Variables); err != nil {
		fields = append(fields, err.(*ValidationError).Fields...)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateUpdate(update TemplateUpdate) error {
	var fields []string
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		fields = append(fields, "name must not be empty")
	}
	if update.Category != nil && strings.TrimSpace(*update.Category) == "" {
		fields = append(fields, "category must not be empty")
	}
	if update.Content != nil && strings.TrimSpace(*update.Content) == "" {
		fields = append(fields, "content must not be empty")
	}
	if update.Language != nil && *update.Language != "" && !update.Language.Valid() {
		fields = append(fields, fmt.Sprintf("language must be one of EN, FR, DE (got %q)", *update.Language))
	}
	if update.Variables != nil {
		if err := validateVariables(*update.Variables); err != nil {
			fields = append(fields, err.(*ValidationError).Fields...)
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateVariables(vars []model.Variable) error {
	var fields []string
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if strings.TrimSpace(v.Name) == "" {
			fields = append(fields, "variable name is required")
			continue
		}
		if seen[v.Name] {
			fields = append(fields, fmt.Sprintf("variable %q is defined twice", v.Name))
		}
		seen[v.Name] = true

		switch v.Type {
		case "", model.VariableText, model.VariableTextarea:
		case model.VariableDropdown:
			if len(v.Options) == 0 {
				fields = append(fields, fmt.Sprintf("dropdown variable %q needs at least one option", v.Name))
			}
		default:
			fields = append(fields, fmt.Sprintf("variable %q has unknown type %q", v.Name, v.Type))
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
