package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidOwnerType    = errors.New("invalid owner type")
	ErrInvalidOwnerID      = errors.New("owner id must be positive")
	ErrInvalidSlotName     = errors.New("invalid attachment name")
	ErrNoAllowedExtensions = errors.New("an array of valid extensions must be specified")
)

// 验证常量
const (
	MaxOwnerTypeLength = 64
	MaxSlotNameLength  = 64
)

// 正则表达式
var (
	// 父实体类型会变成目录名，只允许标识符字符
	ownerTypeRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

	// 附件名称（如 original、thumbnail）
	slotNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// ValidateOwner 验证父实体
func ValidateOwner(owner Owner) error {
	if owner.Type == "" || len(owner.Type) > MaxOwnerTypeLength || !ownerTypeRegex.MatchString(owner.Type) {
		return ErrInvalidOwnerType
	}
	if owner.ID <= 0 {
		return ErrInvalidOwnerID
	}
	return nil
}

// ValidateSlotName 验证附件名称
func ValidateSlotName(name string) error {
	if len(name) > MaxSlotNameLength || !slotNameRegex.MatchString(name) {
		return ErrInvalidSlotName
	}
	return nil
}

// ExtensionValidator 扩展名白名单验证器
type ExtensionValidator struct {
	allowed map[string]bool
}

// NewExtensionValidator 创建扩展名验证器，比较时忽略大小写。
//
// 白名单为空视为调用方的编程错误。
func NewExtensionValidator(allowed ...string) (*ExtensionValidator, error) {
	if len(allowed) == 0 {
		return nil, ErrNoAllowedExtensions
	}

	set := make(map[string]bool, len(allowed))
	for _, ext := range allowed {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &ExtensionValidator{allowed: set}, nil
}

// Validate 检查文件扩展名是否在白名单中
func (v *ExtensionValidator) Validate(file *StoredFile) error {
	if file == nil {
		return nil
	}
	if !v.allowed[strings.ToLower(file.Extension)] {
		return ErrInvalidExtension
	}
	return nil
}
