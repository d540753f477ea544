package storage

import (
	"context"
	"errors"
)

// ErrUnknownBackend 未知的存储后端
var ErrUnknownBackend = errors.New("unknown store backend")

// CollectionStore 整集合读写的键值存储
//
// LoadCollection 在 key 不存在时返回 (nil, nil)。SaveCollection 整体替换该 key 的值，
// 不提供部分写入；多个写入方并发时后写者覆盖先写者。
type CollectionStore interface {
	LoadCollection(ctx context.Context, key string) ([]byte, error)
	SaveCollection(ctx context.Context, key string, data []byte) error
}
