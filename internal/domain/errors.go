package domain

import (
	"errors"
	"fmt"
)

// 附件生命周期相关的错误定义
var (
	// ErrIdentityMissing 记录尚未保存，无法生成文件名
	ErrIdentityMissing = errors.New("record must be saved before a filename can be generated")
	// ErrURLPrefixNotConfigured 未配置公开访问 URL 前缀
	ErrURLPrefixNotConfigured = errors.New("url prefix has not been configured")
	// ErrSourceUnreadable 来源文件无法打开或读取
	ErrSourceUnreadable = errors.New("source cannot be opened for reading")
	// ErrStorageIO 文件系统操作失败（用于 errors.Is 匹配 StorageIOError）
	ErrStorageIO = errors.New("storage io error")
	// ErrFilePathNotSet 未配置存储根目录
	ErrFilePathNotSet = errors.New("storage root directory must be specified")
	// ErrFileNotSet 新建记录时没有待提交的文件内容
	ErrFileNotSet = errors.New("file must be set")
	// ErrFileMissing 已保存记录的文件不在磁盘上
	ErrFileMissing = errors.New("file does not exist on disk")
	// ErrInvalidExtension 文件扩展名不在允许列表中
	ErrInvalidExtension = errors.New("file does not have a valid file extension")
)

// StorageIOError 包装底层文件系统错误，记录失败的操作和路径。
type StorageIOError struct {
	Op   string // mkdir, write, rename, remove, stat, glob, ...
	Path string
	Err  error
}

// NewStorageIOError 创建文件系统错误
func NewStorageIOError(op, path string, err error) *StorageIOError {
	return &StorageIOError{Op: op, Path: path, Err: err}
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageIOError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrStorageIO) 对所有 StorageIOError 成立
func (e *StorageIOError) Is(target error) bool {
	return target == ErrStorageIO
}
