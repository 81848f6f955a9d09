package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"filecargo/backend/internal/domain"
	"filecargo/backend/internal/security"
	"filecargo/backend/internal/storage"
	"filecargo/backend/internal/storage/filesystem"
)

// AttachmentService 管理父实体上的附件：构建、暂存、保存与删除。
type AttachmentService struct {
	repo       storage.StoredFileRepository
	files      *filesystem.Store
	log        *zap.Logger
	validators map[string]*domain.ExtensionValidator // 附件名称 -> 扩展名白名单
	guard      *security.ContentGuard                // 为 nil 时不检查内容
}

// NewAttachmentService 创建附件业务服务。
func NewAttachmentService(repo storage.StoredFileRepository, files *filesystem.Store, log *zap.Logger) *AttachmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttachmentService{
		repo:       repo,
		files:      files,
		log:        log,
		validators: make(map[string]*domain.ExtensionValidator),
	}
}

// RestrictExtensions 限制指定附件名称允许的扩展名
func (s *AttachmentService) RestrictExtensions(name string, allowed ...string) error {
	validator, err := domain.NewExtensionValidator(allowed...)
	if err != nil {
		return err
	}
	s.validators[name] = validator
	return nil
}

// UseContentGuard 保存前用 guard 检查待提交内容
func (s *AttachmentService) UseContentGuard(guard *security.ContentGuard) {
	s.guard = guard
}

// Build 为父实体创建一个尚未保存的附件
func (s *AttachmentService) Build(owner domain.Owner, name string) (*filesystem.Attachment, error) {
	if err := domain.ValidateOwner(owner); err != nil {
		return nil, err
	}
	if err := domain.ValidateSlotName(name); err != nil {
		return nil, err
	}
	return s.files.Attach(domain.NewStoredFile(owner, name)), nil
}

// Load 读取已保存的附件
func (s *AttachmentService) Load(owner domain.Owner, name string) (*filesystem.Attachment, error) {
	file, err := s.repo.FindByParent(owner, name)
	if err != nil {
		return nil, err
	}
	return s.files.Attach(file), nil
}

// LoadAll 读取父实体的全部附件
func (s *AttachmentService) LoadAll(owner domain.Owner) ([]*filesystem.Attachment, error) {
	files, err := s.repo.ListByParent(owner)
	if err != nil {
		return nil, err
	}
	attachments := make([]*filesystem.Attachment, 0, len(files))
	for _, f := range files {
		attachments = append(attachments, s.files.Attach(f))
	}
	return attachments, nil
}

// Set 暂存新内容：附件已存在时加载，否则新建
func (s *AttachmentService) Set(owner domain.Owner, name string, src filesystem.Source) (*filesystem.Attachment, error) {
	att, err := s.Load(owner, name)
	if errors.Is(err, storage.ErrFileNotFound) {
		att, err = s.Build(owner, name)
	}
	if err != nil {
		return nil, err
	}

	if _, err := att.Set(src); err != nil {
		return nil, err
	}
	return att, nil
}

// Validate 检查附件能否保存
func (s *AttachmentService) Validate(att *filesystem.Attachment) error {
	file := att.File()
	if file.IsNew() && !att.HasPendingContent() {
		return domain.ErrFileNotSet
	}
	if validator, ok := s.validators[file.Name]; ok && (att.HasPendingContent() || file.IsChanged()) {
		if err := validator.Validate(file); err != nil {
			return fmt.Errorf("%s: %w", file.Name, err)
		}
	}
	if s.guard != nil && att.HasPendingContent() {
		header, err := att.PendingHeader(security.HeaderSize)
		if err != nil {
			return err
		}
		if err := s.guard.Check(file.OriginalFilename, att.PendingSize(), header); err != nil {
			return fmt.Errorf("%s: %w", file.Name, err)
		}
	}
	return nil
}

// ValidateFileExists 新附件必须有待提交内容，已保存的附件文件必须在磁盘上
func (s *AttachmentService) ValidateFileExists(att *filesystem.Attachment) error {
	if att.HasPendingContent() {
		return nil
	}
	if att.File().IsNew() {
		return domain.ErrFileNotSet
	}
	if !att.Exists() {
		return domain.ErrFileMissing
	}
	return nil
}

// Save 校验并保存附件，保存成功后提交暂存内容。
// 记录未变化且没有待提交内容时不做任何操作。
func (s *AttachmentService) Save(att *filesystem.Attachment) error {
	if err := s.Validate(att); err != nil {
		return err
	}

	file := att.File()
	if !file.IsNew() && !file.IsChanged() && !att.HasPendingContent() {
		return nil
	}

	if err := s.repo.SaveFile(file, att); err != nil {
		s.log.Error("Failed to save attachment",
			zap.String("parent_type", file.ParentType),
			zap.Int64("parent_id", file.ParentID),
			zap.String("name", file.Name),
			zap.Error(err))
		return err
	}
	return nil
}

// Attach Set 与 Save 的组合
func (s *AttachmentService) Attach(owner domain.Owner, name string, src filesystem.Source) (*filesystem.Attachment, error) {
	att, err := s.Set(owner, name, src)
	if err != nil {
		return nil, err
	}
	if err := s.Save(att); err != nil {
		if discardErr := att.Discard(); discardErr != nil {
			s.log.Warn("Failed to discard staged content",
				zap.String("parent_type", owner.Type),
				zap.Int64("parent_id", owner.ID),
				zap.String("name", name),
				zap.Error(discardErr))
		}
		return nil, err
	}
	return att, nil
}

// Destroy 删除附件文件及其记录
func (s *AttachmentService) Destroy(att *filesystem.Attachment) error {
	return s.repo.DeleteFile(att.File(), att)
}

// DestroyAll 删除父实体的全部附件，返回删除数量
func (s *AttachmentService) DestroyAll(owner domain.Owner) (int, error) {
	attachments, err := s.LoadAll(owner)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, att := range attachments {
		if err := s.Destroy(att); err != nil {
			return count, err
		}
		count++
	}

	s.log.Info("Destroyed attachments",
		zap.String("parent_type", owner.Type),
		zap.Int64("parent_id", owner.ID),
		zap.Int("count", count))
	return count, nil
}

// URL 返回附件的公开访问地址
func (s *AttachmentService) URL(att *filesystem.Attachment) (string, error) {
	return att.URL()
}
