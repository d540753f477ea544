package service

import (
	"context"
	"testing"

	"reply_templates/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncGlobalVariables(t *testing.T) {
	svc, store := newTestService(t)
	notifier := &recordingNotifier{}
	ctx := context.Background()

	_, err := svc.AddTemplate(ctx, input("A", "General", "<p>{{name}} {{order}}</p>", model.LanguageEN))
	require.NoError(t, err)
	_, err = svc.AddTemplate(ctx, input("B", "General", "<p>{{name}} {{agent}}</p>", model.LanguageEN))
	require.NoError(t, err)
	_, err = svc.UpdateGlobalVariable(ctx, model.Variable{Name: "name", Description: "Customer", DefaultValue: "there"})
	require.NoError(t, err)

	svc.SetChangeNotifier(notifier)

	vars, err := svc.SyncGlobalVariables(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 3)
	assert.Equal(t, model.Variable{Name: "name", Description: "Customer", DefaultValue: "there"}, vars[0])
	assert.Equal(t, "order", vars[1].Name)
	assert.Equal(t, "Global value for order", vars[1].Description)
	assert.Equal(t, "agent", vars[2].Name)
	assert.Equal(t, []string{"globalVariables:sync"}, notifier.events)

	// 没有新变量时不写回
	saved := loadRaw(t, store, model.CollectionGlobalVariables)
	vars, err = svc.SyncGlobalVariables(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, 3)
	assert.Equal(t, saved, loadRaw(t, store, model.CollectionGlobalVariables))
	assert.Len(t, notifier.events, 1)
}

func TestSyncGlobalVariables_NeverShrinks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tpl, err := svc.AddTemplate(ctx, input("A", "General", "<p>{{old}}</p>", model.LanguageEN))
	require.NoError(t, err)
	_, err = svc.SyncGlobalVariables(ctx)
	require.NoError(t, err)

	_, err = svc.UpdateTemplate(ctx, tpl.ID, TemplateUpdate{Content: strPtr("<p>{{new}}</p>")})
	require.NoError(t, err)

	vars, err := svc.SyncGlobalVariables(ctx)
	require.NoError(t, err)
	names := []string{}
	for _, v := range vars {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"old", "new"}, names)

	persisted, err := svc.GetGlobalVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, vars, persisted)
}
