package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"reply_templates/config"
	"reply_templates/storage"

	"go.uber.org/zap"
)

// OpenStore 按配置创建集合存储，返回的 cleanup 关闭底层连接
func OpenStore(cfg *config.Config, log *zap.Logger) (storage.CollectionStore, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		return storage.NewMemoryStore(), func() {}, nil

	case "redis":
		if err := InitRedis(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB, log); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return storage.NewRedisStore(GetRedis(), cfg.RedisKeyPrefix), func() { CloseRedis() }, nil

	case "postgres", "sqlite":
		dsn := cfg.DatabaseURL
		if cfg.StoreBackend == "sqlite" {
			dsn = cfg.SQLitePath
			if dsn != ":memory:" {
				if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
					return nil, nil, fmt.Errorf("failed to create sqlite directory: %w", err)
				}
			}
		}
		if err := InitDB(cfg.StoreBackend, dsn, log); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store := storage.NewGormStore(GetDB())
		if err := store.AutoMigrate(); err != nil {
			CloseDB()
			return nil, nil, fmt.Errorf("failed to migrate collections table: %w", err)
		}
		return store, func() { CloseDB() }, nil
	}

	return nil, nil, fmt.Errorf("%w: %s", storage.ErrUnknownBackend, cfg.StoreBackend)
}
