package storage

import (
	"context"
	"errors"
	"fmt"

	"reply_templates/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 将集合存入 collections 表（postgres / sqlite）
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate 创建 collections 表
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&model.Collection{})
}

func (s *GormStore) LoadCollection(ctx context.Context, key string) ([]byte, error) {
	var row model.Collection
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", key, err)
	}
	return []byte(row.Value), nil
}

func (s *GormStore) SaveCollection(ctx context.Context, key string, data []byte) error {
	row := model.Collection{Key: key, Value: string(data)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save collection %s: %w", key, err)
	}
	return nil
}
