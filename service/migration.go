package service

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"reply_templates/model"
)

const (
	MigrationBaseID   = "base_id"
	MigrationRichText = "rich_text"
)

// OutcomeKind 单条记录的迁移结果
type OutcomeKind string

const (
	OutcomeBaseIDAssigned    OutcomeKind = "baseid_assigned"
	OutcomeRenamed           OutcomeKind = "renamed"
	OutcomeRichTextConverted OutcomeKind = "rich_text_converted"
)

// MigrationOutcome 被迁移修改的记录
type MigrationOutcome struct {
	TemplateID   string      `json:"templateId"`
	Kind         OutcomeKind `json:"kind"`
	BaseID       string      `json:"baseId,omitempty"`
	PreviousName string      `json:"previousName,omitempty"`
	Name         string      `json:"name,omitempty"`
}

// MigrationReport 迁移报告，Affected 为被修改的记录数
type MigrationReport struct {
	Migration string             `json:"migration"`
	Affected  int                `json:"affected"`
	Outcomes  []MigrationOutcome `json:"outcomes"`
}

// Renamed 因语言冲突被改名的记录
func (r *MigrationReport) Renamed() []MigrationOutcome {
	var renamed []MigrationOutcome
	for _, o := range r.Outcomes {
		if o.Kind == OutcomeRenamed {
			renamed = append(renamed, o)
		}
	}
	return renamed
}

// MigrateBaseIDs 为旧数据补 baseId
//
// 只处理包含缺失 baseId 记录的同名组。组内 createdAt 最早的记录的 id 作为整组 baseId；
// 同组内同一有效语言的第二条及以后的记录改名为 "<name> (<LANG> <n>)" 并独立成组，
// 以保证分组内语言唯一。不修改 updatedAt。
func MigrateBaseIDs(templates []model.Template) ([]model.Template, MigrationReport) {
	report := MigrationReport{Migration: MigrationBaseID, Outcomes: []MigrationOutcome{}}

	pendingNames := make(map[string]bool)
	for _, tpl := range templates {
		if tpl.BaseID == "" {
			pendingNames[tpl.Name] = true
		}
	}
	if len(pendingNames) == 0 {
		return templates, report
	}

	out := make([]model.Template, len(templates))
	copy(out, templates)

	// 按名称分组，记录下标
	byName := make(map[string][]int)
	var names []string
	for i, tpl := range out {
		if !pendingNames[tpl.Name] {
			continue
		}
		if _, ok := byName[tpl.Name]; !ok {
			names = append(names, tpl.Name)
		}
		byName[tpl.Name] = append(byName[tpl.Name], i)
	}

	touched := make(map[int]bool)
	for _, name := range names {
		members := byName[name]

		if len(members) == 1 {
			i := members[0]
			if out[i].BaseID == "" {
				out[i].BaseID = out[i].ID
				touched[i] = true
				report.Outcomes = append(report.Outcomes, MigrationOutcome{
					TemplateID: out[i].ID,
					Kind:       OutcomeBaseIDAssigned,
					BaseID:     out[i].BaseID,
				})
			}
			continue
		}

		sort.SliceStable(members, func(a, b int) bool {
			return out[members[a]].CreatedAt < out[members[b]].CreatedAt
		})
		canonical := out[members[0]].ID

		seen := make(map[model.Language]int)
		for _, i := range members {
			lang := out[i].EffectiveLanguage()
			seen[lang]++

			if n := seen[lang]; n > 1 {
				previous := out[i].Name
				out[i].Name = fmt.Sprintf("%s (%s %d)", previous, lang, n)
				out[i].BaseID = out[i].ID
				touched[i] = true
				report.Outcomes = append(report.Outcomes, MigrationOutcome{
					TemplateID:   out[i].ID,
					Kind:         OutcomeRenamed,
					BaseID:       out[i].BaseID,
					PreviousName: previous,
					Name:         out[i].Name,
				})
				continue
			}

			if out[i].BaseID != canonical {
				out[i].BaseID = canonical
				touched[i] = true
				report.Outcomes = append(report.Outcomes, MigrationOutcome{
					TemplateID: out[i].ID,
					Kind:       OutcomeBaseIDAssigned,
					BaseID:     canonical,
				})
			}
		}
	}

	report.Affected = len(touched)
	return out, report
}

// MigrateRichText 将纯文本内容转换为 HTML：逐行转义后包裹 <p>，丢弃空行
func MigrateRichText(templates []model.Template) ([]model.Template, MigrationReport) {
	report := MigrationReport{Migration: MigrationRichText, Outcomes: []MigrationOutcome{}}

	var out []model.Template
	for i, tpl := range templates {
		if tpl.IsRichText {
			continue
		}
		if out == nil {
			out = make([]model.Template, len(templates))
			copy(out, templates)
		}
		out[i].Content = PlainTextToHTML(tpl.Content)
		out[i].IsRichText = true
		report.Outcomes = append(report.Outcomes, MigrationOutcome{
			TemplateID: tpl.ID,
			Kind:       OutcomeRichTextConverted,
		})
	}

	report.Affected = len(report.Outcomes)
	if out == nil {
		return templates, report
	}
	return out, report
}

// PlainTextToHTML 纯文本转段落 HTML，内容为空时返回 "<p></p>"
func PlainTextToHTML(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	if b.Len() == 0 {
		return "<p></p>"
	}
	return b.String()
}
