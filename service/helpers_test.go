package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"reply_templates/model"
	"reply_templates/storage"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingNotifier 记录变更通知
type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) CollectionChanged(key, op string) {
	n.events = append(n.events, key+":"+op)
}

// newTestService 创建使用内存存储、固定时钟和顺序 id 的服务
func newTestService(t *testing.T) (*TemplateService, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	svc := NewTemplateService(store, zap.NewNop())

	clock := int64(1_000)
	svc.now = func() int64 {
		clock++
		return clock
	}
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("tpl-%d", seq)
	}
	return svc, store
}

// seedTemplates 直接写入集合，绕过服务校验（模拟旧版本数据）
func seedTemplates(t *testing.T, store storage.CollectionStore, templates []model.Template) {
	t.Helper()
	data, err := json.Marshal(templates)
	require.NoError(t, err)
	require.NoError(t, store.SaveCollection(context.Background(), model.CollectionTemplates, data))
}

func loadRaw(t *testing.T, store storage.CollectionStore, key string) []byte {
	t.Helper()
	data, err := store.LoadCollection(context.Background(), key)
	require.NoError(t, err)
	return data
}

func input(name, category, content string, lang model.Language) TemplateInput {
	return TemplateInput{Name: name, Category: category, Content: content, Language: lang}
}

func strPtr(s string) *string {
	return &s
}

func langPtr(l model.Language) *model.Language {
	return &l
}

func zapNop() *zap.Logger {
	return zap.NewNop()
}
