package service

import (
	"fmt"
	"strings"

	"reply_templates/model"
)

// ValidationError 必填字段缺失或取值非法，在访问存储之前返回
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid template: %s", strings.Join(e.Fields, "; "))
}

// DuplicateLanguageError 同一 baseId 分组下已存在该语言
type DuplicateLanguageError struct {
	Language model.Language
	Name     string
}

func (e *DuplicateLanguageError) Error() string {
	return fmt.Sprintf("a %s version of template %q already exists", e.Language, e.Name)
}

// ImportFormatError 导入数据格式错误，整体拒绝
type ImportFormatError struct {
	Reason string
}

func (e *ImportFormatError) Error() string {
	return "invalid import format: " + e.Reason
}

// MigrationError 迁移失败；迁移可重入，重新执行即可恢复
type MigrationError struct {
	Migration string
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Migration, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
