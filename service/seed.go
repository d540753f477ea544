package service

import (
	"context"
	"fmt"
	"os"

	"reply_templates/model"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SeedTemplate 种子文件中的一个模板分组
type SeedTemplate struct {
	TemplateInput `yaml:",inline"`
	// Translations 语言 -> 内容，name/category/variables 与主模板相同
	Translations map[model.Language]string `yaml:"translations,omitempty"`
}

// SeedFile 默认模板种子文件
type SeedFile struct {
	Templates []SeedTemplate `yaml:"templates"`
}

// LoadSeedFile 读取 YAML 种子文件
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// InitDefaultTemplates 模板集合为空时写入种子模板，返回新建的记录数
func (s *TemplateService) InitDefaultTemplates(ctx context.Context, seed *SeedFile) (int, error) {
	existing, err := s.loadTemplates(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for _, st := range seed.Templates {
		base, err := s.AddTemplate(ctx, st.TemplateInput, AsNewGroup())
		if err != nil {
			return created, fmt.Errorf("failed to create default template %s: %w", st.Name, err)
		}
		created++

		// 按固定顺序添加翻译，保证结果稳定
		for _, lang := range model.Languages {
			content, ok := st.Translations[lang]
			if !ok {
				continue
			}
			if _, err := s.AddTranslation(ctx, base, lang, content); err != nil {
				return created, fmt.Errorf("failed to create %s translation of %s: %w", lang, st.Name, err)
			}
			created++
		}
	}

	s.log.Info("default templates initialized", zap.Int("created", created))
	return created, nil
}
