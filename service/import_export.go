package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"reply_templates/model"

	"go.uber.org/zap"
)

// ImportOptions 导入选项
type ImportOptions struct {
	// Merge 为 true 时先与现有集合按 id 合并再写回；否则直接覆盖
	Merge bool
}

// SkippedTemplate 导入时被跳过的记录
type SkippedTemplate struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult 导入结果
type ImportResult struct {
	Imported        int               `json:"imported"`
	Skipped         []SkippedTemplate `json:"skipped"`
	GlobalVariables int               `json:"globalVariables"`
}

// ExportData 导出所有模板和全局变量
func (s *TemplateService) ExportData(ctx context.Context) (*model.ExportEnvelope, error) {
	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}
	vars, err := s.loadGlobalVariables(ctx)
	if err != nil {
		return nil, err
	}
	return &model.ExportEnvelope{
		Templates:       templates,
		GlobalVariables: vars,
		ExportDate:      time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ImportData 导入导出文件
//
// templates 缺失或不是数组时返回 ImportFormatError，不写入任何数据。
// 缺少 name/category/content 的单条记录跳过并记录警告。globalVariables 缺失时保留现有全局变量。
func (s *TemplateService) ImportData(ctx context.Context, raw []byte, opts ImportOptions) (result *ImportResult, err error) {
	defer func() { observe("import", err) }()

	var envelope struct {
		Templates       json.RawMessage `json:"templates"`
		GlobalVariables json.RawMessage `json:"globalVariables"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ImportFormatError{Reason: fmt.Sprintf("payload is not a JSON object: %v", err)}
	}
	if !isJSONArray(envelope.Templates) {
		return nil, &ImportFormatError{Reason: "templates must be an array"}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(envelope.Templates, &items); err != nil {
		return nil, &ImportFormatError{Reason: fmt.Sprintf("templates: %v", err)}
	}

	var vars []model.Variable
	hasVars := isJSONArray(envelope.GlobalVariables)
	if hasVars {
		if err := json.Unmarshal(envelope.GlobalVariables, &vars); err != nil {
			return nil, &ImportFormatError{Reason: fmt.Sprintf("globalVariables: %v", err)}
		}
	}

	result = &ImportResult{Skipped: []SkippedTemplate{}}
	incoming := make([]model.Template, 0, len(items))
	positions := make([]int, 0, len(items))
	for i, item := range items {
		var tpl model.Template
		if err := json.Unmarshal(item, &tpl); err != nil {
			s.skip(result, i, "", fmt.Sprintf("malformed template: %v", err))
			continue
		}
		if missing := missingRequired(&tpl); missing != "" {
			s.skip(result, i, tpl.ID, missing)
			continue
		}
		if tpl.ID == "" {
			tpl.ID = s.newID()
		}
		if tpl.BaseID == "" {
			tpl.BaseID = tpl.ID
		}
		if tpl.Variables == nil {
			tpl.Variables = GenerateVariableObjects(tpl.Content)
		}
		tpl.IsRichText = true
		incoming = append(incoming, tpl)
		positions = append(positions, i)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	templates := incoming
	if opts.Merge {
		existing, err := s.loadTemplates(ctx)
		if err != nil {
			return nil, err
		}
		templates = existing
		accepted := incoming[:0]
		for j, tpl := range incoming {
			// 合并后同一分组内语言仍需唯一
			lang := tpl.EffectiveLanguage()
			if hasLanguage(templates, tpl.GroupID(), lang, tpl.ID) {
				s.skip(result, positions[j], tpl.ID, fmt.Sprintf("language %s already exists in group %s", lang, tpl.GroupID()))
				continue
			}
			templates = mergeByID(templates, []model.Template{tpl})
			accepted = append(accepted, tpl)
		}
		incoming = accepted
		sort.SliceStable(result.Skipped, func(a, b int) bool {
			return result.Skipped[a].Index < result.Skipped[b].Index
		})
	}

	if err := s.saveTemplates(ctx, templates, "import"); err != nil {
		return nil, err
	}
	if hasVars {
		if opts.Merge {
			existing, err := s.loadGlobalVariables(ctx)
			if err != nil {
				return nil, err
			}
			vars = mergeByName(existing, vars)
		}
		if err := s.saveGlobalVariables(ctx, vars, "import"); err != nil {
			return nil, err
		}
		result.GlobalVariables = len(vars)
	}

	result.Imported = len(incoming)
	s.log.Info("templates imported",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", len(result.Skipped)),
		zap.Bool("merge", opts.Merge))
	return result, nil
}

func (s *TemplateService) skip(result *ImportResult, index int, id, reason string) {
	s.log.Warn("skipping imported template", zap.Int("index", index), zap.String("id", id), zap.String("reason", reason))
	result.Skipped = append(result.Skipped, SkippedTemplate{Index: index, ID: id, Reason: reason})
}

func missingRequired(tpl *model.Template) string {
	var missing []string
	if tpl.Name == "" {
		missing = append(missing, "name")
	}
	if tpl.Category == "" {
		missing = append(missing, "category")
	}
	if tpl.Content == "" {
		missing = append(missing, "content")
	}
	if len(missing) == 0 {
		return ""
	}
	return "missing " + strings.Join(missing, ", ")
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// mergeByID 以 incoming 为准按 id 合并，保持现有顺序，新记录追加在后
func mergeByID(existing, incoming []model.Template) []model.Template {
	pos := make(map[string]int, len(existing))
	merged := append([]model.Template(nil), existing...)
	for i := range merged {
		pos[merged[i].ID] = i
	}
	for _, tpl := range incoming {
		if i, ok := pos[tpl.ID]; ok {
			merged[i] = tpl
			continue
		}
		pos[tpl.ID] = len(merged)
		merged = append(merged, tpl)
	}
	return merged
}

func mergeByName(existing, incoming []model.Variable) []model.Variable {
	pos := make(map[string]int, len(existing))
	merged := append([]model.Variable(nil), existing...)
	for i := range merged {
		pos[merged[i].Name] = i
	}
	for _, v := range incoming {
		if i, ok := pos[v.Name]; ok {
			merged[i] = v
			continue
		}
		pos[v.Name] = len(merged)
		merged = append(merged, v)
	}
	return merged
}
