package cache

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/monitoring"
	"filecargo/backend/internal/storage"
)

// slotKey 父实体下的附件位置
type slotKey struct {
	parentType string
	parentID   int64
	name       string
}

func slotOf(f *domain.StoredFile) slotKey {
	return slotKey{parentType: f.ParentType, parentID: f.ParentID, name: f.Name}
}

// LocalCache 进程内的文件记录读缓存（L1 缓存）
//
// 特点：
//   - 按主键和附件位置两种方式命中
//   - 支持 TTL 过期与容量限制（LRU）
//   - 保存与删除时失效相关条目
//
// 列表查询不经过缓存。
type LocalCache struct {
	storage.Store

	byID    *expirable.LRU[int64, *domain.StoredFile]
	bySlot  *expirable.LRU[slotKey, int64]
	metrics *monitoring.Metrics
}

var _ storage.Store = (*LocalCache)(nil)

// NewLocalCache 创建带缓存的记录存储
//
// 参数:
//   - store: 底层存储
//   - maxSize: 最大缓存条目数
//   - ttl: 过期时间
func NewLocalCache(store storage.Store, maxSize int, ttl time.Duration, metrics *monitoring.Metrics) *LocalCache {
	return &LocalCache{
		Store:   store,
		byID:    expirable.NewLRU[int64, *domain.StoredFile](maxSize, nil, ttl),
		bySlot:  expirable.NewLRU[slotKey, int64](maxSize, nil, ttl),
		metrics: metrics,
	}
}

// GetFile 按主键读取记录
func (c *LocalCache) GetFile(id int64) (*domain.StoredFile, error) {
	if f, ok := c.byID.Get(id); ok {
		c.metrics.RecordCacheLookup(true)
		return f.Clone(), nil
	}
	c.metrics.RecordCacheLookup(false)

	f, err := c.Store.GetFile(id)
	if err != nil {
		return nil, err
	}
	c.put(f)
	return f, nil
}

// FindByParent 按附件位置读取记录
func (c *LocalCache) FindByParent(owner domain.Owner, name string) (*domain.StoredFile, error) {
	slot := slotKey{parentType: owner.Type, parentID: owner.ID, name: name}
	if id, ok := c.bySlot.Get(slot); ok {
		if f, ok := c.byID.Get(id); ok && slotOf(f) == slot {
			c.metrics.RecordCacheLookup(true)
			return f.Clone(), nil
		}
		c.bySlot.Remove(slot)
	}
	c.metrics.RecordCacheLookup(false)

	f, err := c.Store.FindByParent(owner, name)
	if err != nil {
		return nil, err
	}
	c.put(f)
	return f, nil
}

// SaveFile 保存后失效缓存，失败时同样失效
func (c *LocalCache) SaveFile(file *domain.StoredFile, hooks storage.LifecycleAware) error {
	err := c.Store.SaveFile(file, hooks)
	c.invalidate(file)
	return err
}

// DeleteFile 删除后失效缓存
func (c *LocalCache) DeleteFile(file *domain.StoredFile, hooks storage.LifecycleAware) error {
	err := c.Store.DeleteFile(file, hooks)
	if err != nil && !errors.Is(err, storage.ErrFileNotFound) {
		return err
	}
	c.invalidate(file)
	return err
}

// Len 返回按主键缓存的条目数
func (c *LocalCache) Len() int {
	return c.byID.Len()
}

// Clear 清空所有缓存
func (c *LocalCache) Clear() {
	c.byID.Purge()
	c.bySlot.Purge()
}

func (c *LocalCache) put(f *domain.StoredFile) {
	c.byID.Add(f.ID, f.Clone())
	c.bySlot.Add(slotOf(f), f.ID)
}

// invalidate 同时移除旧位置，记录改名后旧位置不再命中
func (c *LocalCache) invalidate(f *domain.StoredFile) {
	if cached, ok := c.byID.Peek(f.ID); ok {
		c.bySlot.Remove(slotOf(cached))
	}
	c.byID.Remove(f.ID)
	c.bySlot.Remove(slotOf(f))
}
