package model

// Language 模板语言
type Language string

const (
	LanguageEN Language = "EN"
	LanguageFR Language = "FR"
	LanguageDE Language = "DE"
)

// Languages 所有受支持的语言，顺序即分组槽位顺序
var Languages = []Language{LanguageEN, LanguageFR, LanguageDE}

// Valid 是否为受支持的语言
func (l Language) Valid() bool {
	switch l {
	case LanguageEN, LanguageFR, LanguageDE:
		return true
	}
	return false
}

// OrDefault 缺省语言视为 EN
func (l Language) OrDefault() Language {
	if l == "" {
		return LanguageEN
	}
	return l
}

// VariableType 变量的展示类型，渲染时忽略
type VariableType string

const (
	VariableText     VariableType = "text"
	VariableDropdown VariableType = "dropdown"
	VariableTextarea VariableType = "textarea"
)

// Variable 模板变量（也用作全局变量表条目）
type Variable struct {
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description" yaml:"description"`
	DefaultValue string       `json:"defaultValue,omitempty" yaml:"default_value,omitempty"`
	Type         VariableType `json:"type,omitempty" yaml:"type,omitempty"`
	Options      []string     `json:"options,omitempty" yaml:"options,omitempty"`
}

// Template 回复模板。同一 BaseID 下的记录是同一模板的不同语言版本
type Template struct {
	ID         string     `json:"id"`
	BaseID     string     `json:"baseId,omitempty"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Content    string     `json:"content"`            // 文本/HTML，支持变量：{{customer_name}}
	Variables  []Variable `json:"variables"`          // 由 content 推导，描述/默认值可单独编辑
	Language   Language   `json:"language,omitempty"` // 缺省视为 EN
	IsRichText bool       `json:"isRichText"`
	CreatedAt  int64      `json:"createdAt"` // Unix 毫秒
	UpdatedAt  int64      `json:"updatedAt"`
}

// GroupID 有效分组 ID：BaseID 缺失时退回 ID
func (t *Template) GroupID() string {
	if t.BaseID != "" {
		return t.BaseID
	}
	return t.ID
}

// EffectiveLanguage 有效语言
func (t *Template) EffectiveLanguage() Language {
	return t.Language.OrDefault()
}

// Clone 深拷贝，避免调用方修改共享切片
func (t Template) Clone() Template {
	if t.Variables != nil {
		vars := make([]Variable, len(t.Variables))
		for i, v := range t.Variables {
			vars[i] = v
			if v.Options != nil {
				vars[i].Options = append([]string(nil), v.Options...)
			}
		}
		t.Variables = vars
	}
	return t
}

// LanguageSlots 分组中每种语言的槽位
type LanguageSlots struct {
	EN *Template `json:"EN"`
	FR *Template `json:"FR"`
	DE *Template `json:"DE"`
}

// Get 按语言取槽位
func (s *LanguageSlots) Get(lang Language) *Template {
	switch lang {
	case LanguageEN:
		return s.EN
	case LanguageFR:
		return s.FR
	case LanguageDE:
		return s.DE
	}
	return nil
}

// Set 按语言写槽位，未知语言返回 false
func (s *LanguageSlots) Set(lang Language, t *Template) bool {
	switch lang {
	case LanguageEN:
		s.EN = t
	case LanguageFR:
		s.FR = t
	case LanguageDE:
		s.DE = t
	default:
		return false
	}
	return true
}

// TemplateGroup 按 BaseID 派生的只读视图，不持久化
type TemplateGroup struct {
	BaseID    string        `json:"baseId"`
	Name      string        `json:"name"`
	Category  string        `json:"category"`
	Templates LanguageSlots `json:"templates"`
	Variables []Variable    `json:"variables"`
}

// ExportEnvelope 导入/导出的 JSON 结构
type ExportEnvelope struct {
	Templates       []Template `json:"templates"`
	GlobalVariables []Variable `json:"globalVariables"`
	ExportDate      string     `json:"exportDate"`
}
