package service

import "reply_templates/model"

// GroupTemplates 按有效 baseId 将模板归组
//
// 组的 name/category/variables 取自该组第一条记录；输出顺序为各 baseId 首次出现的顺序。
// 不支持的语言不会放入任何槽位。
func GroupTemplates(templates []model.Template) []model.TemplateGroup {
	groups := make([]model.TemplateGroup, 0)
	index := make(map[string]int)

	for i := range templates {
		tpl := templates[i]
		baseID := tpl.GroupID()

		pos, ok := index[baseID]
		if !ok {
			groups = append(groups, model.TemplateGroup{
				BaseID:    baseID,
				Name:      tpl.Name,
				Category:  tpl.Category,
				Variables: tpl.Variables,
			})
			pos = len(groups) - 1
			index[baseID] = pos
		}

		groups[pos].Templates.Set(tpl.EffectiveLanguage(), &tpl)
	}

	return groups
}
