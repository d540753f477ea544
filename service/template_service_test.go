package service

import (
	"context"
	"testing"

	"reply_templates/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTemplate_SameNameJoinsGroup(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	en, err := svc.AddTemplate(ctx, input("Greeting", "General", "<p>Hello {{name}}</p>", model.LanguageEN))
	require.NoError(t, err)
	assert.Equal(t, en.ID, en.BaseID)
	assert.True(t, en.IsRichText)
	assert.Equal(t, en.CreatedAt, en.UpdatedAt)
	require.Len(t, en.Variables, 1)
	assert.Equal(t, "name", en.Variables[0].Name)

	fr, err := svc.AddTemplate(ctx, input("Greeting", "General", "<p>Bonjour {{name}}</p>", model.LanguageFR))
	require.NoError(t, err)
	assert.Equal(t, en.BaseID, fr.BaseID)

	before := loadRaw(t, store, model.CollectionTemplates)

	_, err = svc.AddTemplate(ctx, input("Greeting", "General", "<p>Hi again</p>", model.LanguageEN))
	var dupErr *DuplicateLanguageError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, model.LanguageEN, dupErr.Language)
	assert.Equal(t, "Greeting", dupErr.Name)

	// 失败的写入不改变集合
	assert.Equal(t, before, loadRaw(t, store, model.CollectionTemplates))

	templates, err := svc.ListTemplates(ctx)
	require.NoError(t, err)
	count := 0
	for _, tpl := range templates {
		if tpl.Name == "Greeting" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestAddTemplate_AsNewGroup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.AddTemplate(ctx, input("Refund", "Billing", "<p>a</p>", model.LanguageEN))
	require.NoError(t, err)

	second, err := svc.AddTemplate(ctx, input("Refund", "Shipping", "<p>b</p>", model.LanguageEN), AsNewGroup())
	require.NoError(t, err)
	assert.NotEqual(t, first.BaseID, second.BaseID)
	assert.Equal(t, second.ID, second.BaseID)
}

func TestAddTemplate_DefaultsLanguageToEN(t *testing.T) {
	svc, _ := newTestService(t)

	tpl, err := svc.AddTemplate(context.Background(), input("Thanks", "General", "<p>Thanks</p>", ""))
	require.NoError(t, err)
	assert.Equal(t, model.LanguageEN, tpl.Language)
}

func TestAddTemplate_Validation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddTemplate(ctx, TemplateInput{Name: " ", Content: "x"})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "name is required")
	assert.Contains(t, validationErr.Fields, "category is required")

	_, err = svc.AddTemplate(ctx, input("A", "B", "C", "ES"))
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.AddTemplate(ctx, TemplateInput{
		Name: "A", Category: "B", Content: "{{tone}}",
		Variables: []model.Variable{{Name: "tone", Type: model.VariableDropdown}},
	})
	require.ErrorAs(t, err, &validationErr)

	// 校验失败时不访问存储
	assert.Nil(t, loadRaw(t, store, model.CollectionTemplates))
}

func TestAddTranslation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base, err := svc.AddTemplate(ctx, TemplateInput{
		Name: "Delay", Category: "Shipping", Content: "<p>Sorry {{name}}</p>", Language: model.LanguageEN,
		Variables: []model.Variable{{Name: "name", Description: "Customer", DefaultValue: "there"}},
	})
	require.NoError(t, err)

	de, err := svc.AddTranslation(ctx, base, model.LanguageDE, "<p>Entschuldigung {{name}}</p>")
	require.NoError(t, err)
	assert.Equal(t, base.BaseID, de.BaseID)
	assert.Equal(t, "Delay", de.Name)
	assert.Equal(t, "Shipping", de.Category)
	assert.Equal(t, base.Variables, de.Variables)
	assert.Equal(t, model.LanguageDE, de.Language)
	assert.True(t, de.IsRichText)

	_, err = svc.AddTranslation(ctx, base, model.LanguageDE, "<p>Noch einmal</p>")
	var dupErr *DuplicateLanguageError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, model.LanguageDE, dupErr.Language)

	// 从翻译出发添加也归入同一分组
	fr, err := svc.AddTranslation(ctx, de, model.LanguageFR, "<p>Désolé</p>")
	require.NoError(t, err)
	assert.Equal(t, base.BaseID, fr.BaseID)

	_, err = svc.AddTranslation(ctx, base, "", "<p>x</p>")
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestUpdateTemplate_PropagatesSharedFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	en, err := svc.AddTemplate(ctx, input("Greeting", "General", "<p>Hello</p>", model.LanguageEN))
	require.NoError(t, err)
	fr, err := svc.AddTranslation(ctx, en, model.LanguageFR, "<p>Bonjour</p>")
	require.NoError(t, err)
	other, err := svc.AddTemplate(ctx, input("Other", "General", "<p>Other</p>", model.LanguageEN))
	require.NoError(t, err)

	updated, err := svc.UpdateTemplate(ctx, en.ID, TemplateUpdate{Category: strPtr("Support")})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Support", updated.Category)
	assert.Greater(t, updated.UpdatedAt, en.UpdatedAt)

	gotFR, err := svc.GetTemplate(ctx, fr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Support", gotFR.Category)
	assert.Equal(t, "<p>Bonjour</p>", gotFR.Content)
	assert.Equal(t, model.LanguageFR, gotFR.Language)
	assert.Greater(t, gotFR.UpdatedAt, fr.UpdatedAt)

	gotEN, err := svc.GetTemplate(ctx, en.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello</p>", gotEN.Content)
	assert.Equal(t, model.LanguageEN, gotEN.Language)

	gotOther, err := svc.GetTemplate(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "General", gotOther.Category)
	assert.Equal(t, other.UpdatedAt, gotOther.UpdatedAt)
}

func TestUpdateTemplate_NameIsSharedContentIsNot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	en, err := svc.AddTemplate(ctx, input("Greeting", "General", "<p>Hello {{name}}</p>", model.LanguageEN))
	require.NoError(t, err)
	fr, err := svc.AddTranslation(ctx, en, model.LanguageFR, "<p>Bonjour {{name}}</p>")
	require.NoError(t, err)

	_, err = svc.UpdateTemplate(ctx, fr.ID, TemplateUpdate{
		Name:    strPtr("Welcome"),
		Content: strPtr("<p>Salut {{name}} {{agent}}</p>"),
	})
	require.NoError(t, err)

	gotEN, err := svc.GetTemplate(ctx, en.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", gotEN.Name)
	assert.Equal(t, "<p>Hello {{name}}</p>", gotEN.Content)
	require.Len(t, gotEN.Variables, 1)

	gotFR, err := svc.GetTemplate(ctx, fr.ID)
	require.NoError(t, err)
	require.Len(t, gotFR.Variables, 2)
	assert.Equal(t, "agent", gotFR.Variables[1].Name)
}

func TestUpdateTemplate_LanguageConflict(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	en, err := svc.AddTemplate(ctx, input("Greeting", "General", "<p>Hello</p>", model.LanguageEN))
	require.NoError(t, err)
	fr, err := svc.AddTranslation(ctx, en, model.LanguageFR, "<p>Bonjour</p>")
	require.NoError(t, err)

	before := loadRaw(t, store, model.CollectionTemplates)
	_, err = svc.UpdateTemplate(ctx, fr.ID, TemplateUpdate{Language: langPtr(model.LanguageEN)})
	var dupErr *DuplicateLanguageError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, model.LanguageEN, dupErr.Language)
	assert.Equal(t, before, loadRaw(t, store, model.CollectionTemplates))

	// 改为未被占用的语言可以成功
	updated, err := svc.UpdateTemplate(ctx, fr.ID, TemplateUpdate{Language: langPtr(model.LanguageDE)})
	require.NoError(t, err)
	assert.Equal(t, model.LanguageDE, updated.Language)

	// 设为自身当前语言不算冲突
	_, err = svc.UpdateTemplate(ctx, en.ID, TemplateUpdate{Language: langPtr(model.LanguageEN)})
	require.NoError(t, err)
}

func TestUpdateTemplate_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	tpl, err := svc.UpdateTemplate(context.Background(), "missing", TemplateUpdate{Name: strPtr("x")})
	assert.NoError(t, err)
	assert.Nil(t, tpl)
}

func TestUpdateTemplate_ForcesRichText(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seedTemplates(t, store, []model.Template{
		{ID: "legacy", BaseID: "legacy", Name: "Old", Category: "General", Content: "<p>x</p>", IsRichText: false},
	})

	updated, err := svc.UpdateTemplate(ctx, "legacy", TemplateUpdate{Category: strPtr("Misc")})
	require.NoError(t, err)
	assert.True(t, updated.IsRichText)

	_, err = svc.UpdateTemplate(ctx, "legacy", TemplateUpdate{Name: strPtr("")})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestDeleteTemplate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	en, err := svc.AddTemplate(ctx, input("Greeting", "General", "<p>Hello</p>", model.LanguageEN))
	require.NoError(t, err)
	fr, err := svc.AddTranslation(ctx, en, model.LanguageFR, "<p>Bonjour</p>")
	require.NoError(t, err)

	deleted, err := svc.DeleteTemplate(ctx, en.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.DeleteTemplate(ctx, en.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	templates, err := svc.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, fr.ID, templates[0].ID)
}

func TestDeleteTemplateGroup(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	en, err := svc.AddTemplate(ctx, input("Greeting", "General", "<p>Hello</p>", model.LanguageEN))
	require.NoError(t, err)
	_, err = svc.AddTranslation(ctx, en, model.LanguageFR, "<p>Bonjour</p>")
	require.NoError(t, err)
	keep, err := svc.AddTemplate(ctx, input("Other", "General", "<p>Other</p>", model.LanguageEN))
	require.NoError(t, err)

	// 旧数据：缺少 baseId，按 id 计算分组
	seedTemplates(t, store, append(mustList(t, svc), model.Template{
		ID: "legacy", Name: "Legacy", Category: "General", Content: "<p>l</p>", IsRichText: true,
	}))

	deleted, err := svc.DeleteTemplateGroup(ctx, en.BaseID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.DeleteTemplateGroup(ctx, "legacy")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.DeleteTemplateGroup(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, deleted)

	templates := mustList(t, svc)
	require.Len(t, templates, 1)
	assert.Equal(t, keep.ID, templates[0].ID)
}

func TestGlobalVariables_Upsert(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	vars, err := svc.GetGlobalVariables(ctx)
	require.NoError(t, err)
	assert.Empty(t, vars)

	_, err = svc.UpdateGlobalVariable(ctx, model.Variable{Name: "agent", Description: "Agent name"})
	require.NoError(t, err)
	_, err = svc.UpdateGlobalVariable(ctx, model.Variable{Name: "agent", Description: "Agent", DefaultValue: "Sam"})
	require.NoError(t, err)
	_, err = svc.UpdateGlobalVariable(ctx, model.Variable{Name: "team"})
	require.NoError(t, err)

	vars, err = svc.GetGlobalVariables(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "Sam", vars[0].DefaultValue)
	assert.Equal(t, "team", vars[1].Name)

	require.NoError(t, svc.SaveGlobalVariables(ctx, []model.Variable{{Name: "only"}}))
	vars, err = svc.GetGlobalVariables(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 1)

	_, err = svc.UpdateGlobalVariable(ctx, model.Variable{Name: ""})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestChangeNotifier(t *testing.T) {
	svc, _ := newTestService(t)
	notifier := &recordingNotifier{}
	svc.SetChangeNotifier(notifier)
	ctx := context.Background()

	tpl, err := svc.AddTemplate(ctx, input("Greeting", "General", "<p>Hello</p>", model.LanguageEN))
	require.NoError(t, err)
	_, err = svc.AddTemplate(ctx, input("Greeting", "General", "<p>dup</p>", model.LanguageEN))
	require.Error(t, err)
	_, err = svc.DeleteTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	_, err = svc.UpdateGlobalVariable(ctx, model.Variable{Name: "x"})
	require.NoError(t, err)

	assert.Equal(t, []string{"templates:add", "templates:delete", "globalVariables:update"}, notifier.events)
}

func mustList(t *testing.T, svc *TemplateService) []model.Template {
	t.Helper()
	templates, err := svc.ListTemplates(context.Background())
	require.NoError(t, err)
	return templates
}
