package memory

import (
	"sort"
	"sync"
	"time"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/storage"
)

// Store 使用内存保存文件记录，主要用于开发验证。
type Store struct {
	mu       sync.RWMutex
	files    map[int64]*domain.StoredFile // ID -> 记录快照
	byParent map[parentKey]int64          // 父实体 + 名称 -> ID
	nextID   int64
	now      func() time.Time
}

type parentKey struct {
	parentType string
	parentID   int64
	name       string
}

func keyOf(f *domain.StoredFile) parentKey {
	return parentKey{parentType: f.ParentType, parentID: f.ParentID, name: f.Name}
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		files:    make(map[int64]*domain.StoredFile),
		byParent: make(map[parentKey]int64),
		nextID:   1,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ storage.Store = (*Store)(nil)

// SaveFile 保存文件记录并执行生命周期回调。
// Commit 失败时回滚本次保存。
func (s *Store) SaveFile(file *domain.StoredFile, hooks storage.LifecycleAware) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hooks != nil {
		hooks.EnsureKey()
	}

	wasNew := file.IsNew()
	if id, ok := s.byParent[keyOf(file)]; ok && id != file.ID {
		return storage.ErrDuplicateSlot
	}

	var previous *domain.StoredFile
	var previousKey parentKey
	if wasNew {
		file.ID = s.nextID
		file.CreatedAt = s.now()
	} else {
		existing, ok := s.files[file.ID]
		if !ok {
			return storage.ErrFileNotFound
		}
		previous = existing
		previousKey = keyOf(existing)
	}
	file.UpdatedAt = s.now()

	s.putLocked(file)
	if previous != nil && previousKey != keyOf(file) {
		delete(s.byParent, previousKey)
	}

	if hooks != nil {
		if err := hooks.Commit(); err != nil {
			// 回滚
			delete(s.byParent, keyOf(file))
			if wasNew {
				delete(s.files, file.ID)
				file.ID = 0
			} else {
				s.putLocked(previous)
			}
			return err
		}
	}

	if wasNew {
		s.nextID++
	}
	file.ClearChanges()
	return nil
}

// DeleteFile 执行 Remove 回调后删除记录
func (s *Store) DeleteFile(file *domain.StoredFile, hooks storage.LifecycleAware) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if file.IsNew() {
		if hooks != nil {
			return hooks.Remove()
		}
		return nil
	}

	existing, ok := s.files[file.ID]
	if !ok {
		return storage.ErrFileNotFound
	}

	if hooks != nil {
		if err := hooks.Remove(); err != nil {
			return err
		}
	}

	delete(s.files, file.ID)
	delete(s.byParent, keyOf(existing))
	return nil
}

// GetFile 根据 ID 获取记录
func (s *Store) GetFile(id int64) (*domain.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, storage.ErrFileNotFound
	}
	return clone(f), nil
}

// FindByParent 根据父实体和名称获取记录
func (s *Store) FindByParent(owner domain.Owner, name string) (*domain.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byParent[parentKey{parentType: owner.Type, parentID: owner.ID, name: name}]
	if !ok {
		return nil, storage.ErrFileNotFound
	}
	return clone(s.files[id]), nil
}

// ListByParent 返回父实体的全部记录（按 ID 排序）
func (s *Store) ListByParent(owner domain.Owner) ([]*domain.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.StoredFile, 0)
	for _, f := range s.files {
		if f.ParentType == owner.Type && f.ParentID == owner.ID {
			result = append(result, clone(f))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListByType 返回指定父实体类型的全部记录（按 ID 排序）
func (s *Store) ListByType(parentType string) ([]*domain.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.StoredFile, 0)
	for _, f := range s.files {
		if f.ParentType == parentType {
			result = append(result, clone(f))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListByCategory 返回存储分类下的全部记录（按 ID 排序）
func (s *Store) ListByCategory(category string) ([]*domain.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.StoredFile, 0)
	for _, f := range s.files {
		if f.Category() == category {
			result = append(result, clone(f))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Close 关闭存储（内存存储无需关闭）
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态
func (s *Store) Health() error {
	return nil
}

func (s *Store) putLocked(f *domain.StoredFile) {
	s.files[f.ID] = clone(f)
	s.byParent[keyOf(f)] = f.ID
}

func clone(f *domain.StoredFile) *domain.StoredFile {
	return f.Clone()
}
