package storage

import (
	"errors"

	"filecargo/backend/internal/domain"
)

var (
	// ErrFileNotFound 文件记录未找到错误
	ErrFileNotFound = errors.New("stored file not found")
	// ErrDuplicateSlot 同一父实体下已存在同名附件
	ErrDuplicateSlot = errors.New("stored file with this name already exists for owner")
)

// LifecycleAware 持久化层在记录生命周期的固定时刻调用的文件操作。
//
// 保存前调用 EnsureKey，保存成功后调用 Commit，删除记录前调用 Remove。
type LifecycleAware interface {
	EnsureKey()
	Commit() error
	Remove() error
}

// StoredFileRepository 定义文件记录数据存取操作。
//
// SaveFile 与 DeleteFile 在同一事务中执行生命周期回调：
// 回调返回错误时记录修改被回滚。hooks 可以为 nil。
type StoredFileRepository interface {
	SaveFile(file *domain.StoredFile, hooks LifecycleAware) error
	DeleteFile(file *domain.StoredFile, hooks LifecycleAware) error
	GetFile(id int64) (*domain.StoredFile, error)
	FindByParent(owner domain.Owner, name string) (*domain.StoredFile, error)
	ListByParent(owner domain.Owner) ([]*domain.StoredFile, error)
	// ListByType 返回指定父实体类型下的全部记录（按 ID 排序）
	ListByType(parentType string) ([]*domain.StoredFile, error)
	// ListByCategory 返回存储分类下的全部记录（按 ID 排序）。
	// 多个父实体类型写法可能映射到同一分类，如 "image" 与 "Image"。
	ListByCategory(category string) ([]*domain.StoredFile, error)
}

// Store 聚合所有数据访问接口。
type Store interface {
	StoredFileRepository
	Close() error
	Health() error
}
