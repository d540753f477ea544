package service

import (
	"context"

	"reply_templates/model"

	"go.uber.org/zap"
)

// SyncGlobalVariables 对齐全局变量表与所有模板中出现的变量
//
// 已保存的条目原样保留；新出现的变量补默认条目。只在发现新变量时写回，
// 不会删除已不再被引用的条目。
func (s *TemplateService) SyncGlobalVariables(ctx context.Context) ([]model.Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	templates, err := s.loadTemplates(ctx)
	if err != nil {
		return nil, err
	}
	saved, err := s.loadGlobalVariables(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(saved))
	for _, v := range saved {
		known[v.Name] = true
	}

	registry := saved
	var discovered []string
	for _, name := range collectVariableNames(templates) {
		if known[name] {
			continue
		}
		known[name] = true
		discovered = append(discovered, name)
		registry = append(registry, model.Variable{
			Name:        name,
			Description: "Global value for " + name,
			Type:        model.VariableText,
		})
	}

	if len(discovered) == 0 {
		return registry, nil
	}

	if err := s.saveGlobalVariables(ctx, registry, "sync"); err != nil {
		return nil, err
	}
	s.log.Info("global variables discovered", zap.Strings("names", discovered))
	return registry, nil
}

// collectVariableNames 所有模板内容中变量名的并集，按首次出现顺序
func collectVariableNames(templates []model.Template) []string {
	seen := make(map[string]bool)
	var names []string
	for i := range templates {
		for _, name := range ExtractVariables(templates[i].Content) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
