package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// PlatformUtils 平台兼容性工具
type PlatformUtils struct{}

// NewPlatformUtils 创建平台工具实例
func NewPlatformUtils() *PlatformUtils {
	return &PlatformUtils{}
}

// BaseName 返回来源引用的最后一段，去掉任何盘符或路径前缀。
//
// 同时识别 "/"、"\" 和 ":"，浏览器上传的 Windows 路径（C:\photos\a.jpg）也能正确处理。
func (p *PlatformUtils) BaseName(ref string) string {
	if i := strings.LastIndexAny(ref, `/\:`); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// Extension 返回文件名最后一个点之后的部分，没有点时返回空字符串
func (p *PlatformUtils) Extension(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// ValidatePath 验证路径是否安全
func (p *PlatformUtils) ValidatePath(path string) error {
	// 1. 检查路径长度
	if len(path) > p.GetMaxPathLength() {
		return fmt.Errorf("path too long: %d characters", len(path))
	}

	// 2. 检查是否包含路径遍历
	for _, segment := range strings.FieldsFunc(path, isSeparator) {
		if segment == ".." {
			return fmt.Errorf("path traversal detected: %s", path)
		}
	}

	return nil
}

// GetMaxPathLength 获取当前平台的最大路径长度
func (p *PlatformUtils) GetMaxPathLength() int {
	switch runtime.GOOS {
	case "windows":
		// Windows 10 支持长路径，但为了兼容性使用保守值
		return 200
	case "darwin", "linux":
		return 4096
	default:
		return 200
	}
}

// IsCaseSensitive 检查当前文件系统是否大小写敏感
func (p *PlatformUtils) IsCaseSensitive() bool {
	switch runtime.GOOS {
	case "windows":
		return false
	default:
		return true
	}
}

// NormalizePath 标准化路径
func (p *PlatformUtils) NormalizePath(path string) string {
	// 1. 转换为绝对路径
	absPath, err := filepath.Abs(path)
	if err != nil {
		// 如果转换失败，返回原路径
		return path
	}

	// 2. 清理路径
	cleanPath := filepath.Clean(absPath)

	// 3. 如果文件系统不区分大小写，转换为小写
	if !p.IsCaseSensitive() {
		cleanPath = strings.ToLower(cleanPath)
	}

	return cleanPath
}

// JoinPath 将逻辑路径（"/" 分隔）拼接到根目录下，在边界处替换为系统分隔符
func (p *PlatformUtils) JoinPath(root, logical string) string {
	return filepath.Join(root, filepath.FromSlash(logical))
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
