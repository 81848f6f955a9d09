package domain

import (
	"sort"
	"time"

	"gorm.io/gorm/schema"
)

// 元数据字段名（用于变更跟踪）
const (
	FieldName             = "name"
	FieldKey              = "key"
	FieldExtension        = "extension"
	FieldOriginalFilename = "original_filename"
)

// categoryNaming 与 GORM 表名规则保持一致："Image" -> "images"
var categoryNaming = schema.NamingStrategy{}

// Owner 表示附件所属的父实体（多态关联）。
type Owner struct {
	Type string // 父实体类型，如 "Image"
	ID   int64  // 父实体主键
}

// Category 返回父实体对应的存储分类目录名
func (o Owner) Category() string {
	return CategoryFor(o.Type)
}

// CategoryFor 将类型名转换为复数、蛇形的分类名，规则与 GORM 表名一致。
func CategoryFor(typeName string) string {
	if typeName == "" {
		return ""
	}
	return categoryNaming.TableName(typeName)
}

// StoredFile 表示挂载在父实体上的一个外部存储文件。
//
// ID 由持久化层在首次保存时分配，为 0 表示尚未保存，此时无法推导文件路径。
type StoredFile struct {
	ID               int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ParentID         int64     `json:"parentId" gorm:"uniqueIndex:idx_parent_slot,priority:2;not null"`
	ParentType       string    `json:"parentType" gorm:"type:varchar(255);uniqueIndex:idx_parent_slot,priority:1;not null"`
	Name             string    `json:"name" gorm:"type:varchar(255);uniqueIndex:idx_parent_slot,priority:3"`
	Key              string    `json:"key" gorm:"type:varchar(32)"`
	Extension        string    `json:"extension" gorm:"type:varchar(255)"`
	OriginalFilename string    `json:"originalFilename" gorm:"type:varchar(255)"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	changed map[string]struct{}
}

// NewStoredFile 为父实体创建一个尚未保存的附件槽位
func NewStoredFile(owner Owner, name string) *StoredFile {
	return &StoredFile{
		ParentID:   owner.ID,
		ParentType: owner.Type,
		Name:       name,
	}
}

// Owner 返回所属父实体
func (f *StoredFile) Owner() Owner {
	return Owner{Type: f.ParentType, ID: f.ParentID}
}

// Category 返回存储分类目录名
func (f *StoredFile) Category() string {
	return CategoryFor(f.ParentType)
}

// HasIdentity 报告记录是否已分配主键
func (f *StoredFile) HasIdentity() bool {
	return f.ID > 0
}

// IsNew 报告记录是否尚未持久化
func (f *StoredFile) IsNew() bool {
	return !f.HasIdentity()
}

// SetName 设置逻辑名称，值变化时标记为已修改
func (f *StoredFile) SetName(name string) {
	if f.Name == name {
		return
	}
	f.Name = name
	f.markChanged(FieldName)
}

// SetKey 设置随机键并标记为已修改
func (f *StoredFile) SetKey(key string) {
	f.Key = key
	f.markChanged(FieldKey)
}

// SetMetadata 记录来源文件名和扩展名。
// 两个字段总是被标记为已修改，即使值没有变化。
func (f *StoredFile) SetMetadata(originalFilename, extension string) {
	f.OriginalFilename = originalFilename
	f.Extension = extension
	f.markChanged(FieldOriginalFilename)
	f.markChanged(FieldExtension)
}

// IsChanged 报告是否存在未保存的元数据修改
func (f *StoredFile) IsChanged() bool {
	return len(f.changed) > 0
}

// ChangedFields 返回已修改字段（按名称排序）
func (f *StoredFile) ChangedFields() []string {
	fields := make([]string, 0, len(f.changed))
	for field := range f.changed {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// ClearChanges 在持久化成功后清空变更记录
func (f *StoredFile) ClearChanges() {
	f.changed = nil
}

func (f *StoredFile) markChanged(field string) {
	if f.changed == nil {
		f.changed = make(map[string]struct{})
	}
	f.changed[field] = struct{}{}
}

// Clone 复制记录，不携带变更标记
func (f *StoredFile) Clone() *StoredFile {
	c := *f
	c.changed = nil
	return &c
}
