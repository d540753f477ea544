package service

import (
	"context"
	"regexp"
	"strings"

	"reply_templates/metrics"
	"reply_templates/model"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ParseResult 渲染结果
type ParseResult struct {
	Content          string   `json:"content"`
	MissingVariables []string `json:"missingVariables"`
}

// ExtractVariables 提取内容中的 {{name}} 变量名，去重，保持首次出现顺序
func ExtractVariables(content string) []string {
	names := []string{}
	if content == "" {
		return names
	}

	seen := make(map[string]struct{})
	for _, match := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// GenerateVariableObjects 为内容中的每个变量生成空白的变量定义
func GenerateVariableObjects(content string) []model.Variable {
	names := ExtractVariables(content)
	vars := make([]model.Variable, 0, len(names))
	for _, name := range names {
		vars = append(vars, model.Variable{Name: name, Type: model.VariableText})
	}
	return vars
}

// MergeVariables 内容变化后重建变量列表：仍被引用的变量保留原有描述/默认值，
// 新变量补空白定义，不再引用的变量移除
func MergeVariables(existing []model.Variable, content string) []model.Variable {
	byName := make(map[string]model.Variable, len(existing))
	for _, v := range existing {
		byName[v.Name] = v
	}

	names := ExtractVariables(content)
	vars := make([]model.Variable, 0, len(names))
	for _, name := range names {
		if v, ok := byName[name]; ok {
			vars = append(vars, v)
			continue
		}
		vars = append(vars, model.Variable{Name: name, Type: model.VariableText})
	}
	return vars
}

// ParseTemplate 渲染模板
//
// 取值优先级：values[name]（非空）> 模板变量的 DefaultValue > 空字符串。
// 值为空的变量记入 MissingVariables。替换是单遍、按字面进行的：
// 值中的 {{...}} 原样插入，不会再次展开，也不做 HTML 转义。
func ParseTemplate(tpl *model.Template, values map[string]string) ParseResult {
	defaults := make(map[string]string, len(tpl.Variables))
	for _, v := range tpl.Variables {
		if _, ok := defaults[v.Name]; !ok {
			defaults[v.Name] = v.DefaultValue
		}
	}

	resolved := make(map[string]string)
	missing := []string{}
	for _, name := range ExtractVariables(tpl.Content) {
		value := values[name]
		if value == "" {
			value = defaults[name]
		}
		if value == "" {
			missing = append(missing, name)
		}
		resolved[name] = value
	}

	content := placeholderPattern.ReplaceAllStringFunc(tpl.Content, func(token string) string {
		name := strings.TrimSpace(token[2 : len(token)-2])
		value, ok := resolved[name]
		if !ok {
			// {{ }} 这类空名占位符保持原样
			return token
		}
		return value
	})

	return ParseResult{Content: content, MissingVariables: missing}
}

// RenderTemplate 按 id 渲染模板，模板不存在时返回 (nil, nil)
func (s *TemplateService) RenderTemplate(ctx context.Context, id string, values map[string]string) (*ParseResult, error) {
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil || tpl == nil {
		return nil, err
	}

	result := ParseTemplate(tpl, values)
	metrics.TemplateRendersTotal.Inc()
	metrics.TemplateMissingVariablesTotal.Add(float64(len(result.MissingVariables)))
	return &result, nil
}
