package model

import "time"

// 集合键名，与浏览器扩展中的 storage key 保持一致
const (
	CollectionTemplates       = "templates"
	CollectionGlobalVariables = "globalVariables"
)

// Collection 键值集合表：整集合读写，每个 key 一行 JSON
type Collection struct {
	Key       string    `json:"key" gorm:"type:varchar(100);primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Collection) TableName() string {
	return "collections"
}
