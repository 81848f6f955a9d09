package security

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// HeaderSize 内容检查读取的头部字节数
const HeaderSize = 512

// ErrRejectedContent 附件内容未通过安全检查
var ErrRejectedContent = errors.New("attachment content rejected")

// 可执行文件魔数
var executableSignatures = [][]byte{
	{0x4D, 0x5A},             // PE executable
	{0x7F, 0x45, 0x4C, 0x46}, // ELF executable
	{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O executable
	{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O executable (reverse)
}

// ContentGuard 附件内容安全检查器
type ContentGuard struct {
	// 最大文件大小（字节），0 表示不限制
	maxFileSize int64

	// 允许的 MIME 类型，为空时不限制
	allowedMimeTypes map[string]bool

	// 危险文件扩展名
	dangerousExtensions map[string]bool
}

// NewContentGuard 创建附件内容检查器
func NewContentGuard(maxFileSize int64, allowedMimeTypes ...string) *ContentGuard {
	g := &ContentGuard{
		maxFileSize:      maxFileSize,
		allowedMimeTypes: make(map[string]bool, len(allowedMimeTypes)),
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".js":  true,
			".jar": true,
			".php": true,
			".asp": true,
			".jsp": true,
		},
	}
	for _, t := range allowedMimeTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			g.allowedMimeTypes[t] = true
		}
	}
	return g
}

// Check 检查待保存的内容。header 是内容开头的最多 HeaderSize 个字节。
func (g *ContentGuard) Check(filename string, size int64, header []byte) error {
	if err := g.checkFileExtension(filename); err != nil {
		return err
	}
	if g.maxFileSize > 0 && size > g.maxFileSize {
		return fmt.Errorf("%w: file too large (%d > %d bytes)", ErrRejectedContent, size, g.maxFileSize)
	}
	if err := g.checkFileMagic(header); err != nil {
		return err
	}

	mediaType := DetectMimeType(header)
	if len(g.allowedMimeTypes) > 0 && !g.allowedMimeTypes[mediaType] {
		return fmt.Errorf("%w: disallowed MIME type %s", ErrRejectedContent, mediaType)
	}
	if strings.HasPrefix(mediaType, "text/") {
		return g.checkTextContent(header)
	}
	return nil
}

// DetectMimeType 根据内容头部识别媒体类型，不含参数
func DetectMimeType(header []byte) string {
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(header))
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}

// checkFileExtension 检查文件扩展名
func (g *ContentGuard) checkFileExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if g.dangerousExtensions[ext] {
		return fmt.Errorf("%w: dangerous file extension %s", ErrRejectedContent, ext)
	}
	return nil
}

// checkFileMagic 检查可执行文件魔数
func (g *ContentGuard) checkFileMagic(header []byte) error {
	for _, sig := range executableSignatures {
		if bytes.HasPrefix(header, sig) {
			return fmt.Errorf("%w: executable file detected", ErrRejectedContent)
		}
	}
	return nil
}

// checkTextContent 检查文本内容中的脚本
func (g *ContentGuard) checkTextContent(header []byte) error {
	content := strings.ToLower(string(header))
	if strings.Contains(content, "<script") {
		return fmt.Errorf("%w: script tag detected in text file", ErrRejectedContent)
	}
	if strings.Contains(content, "javascript:") {
		return fmt.Errorf("%w: javascript code detected in text file", ErrRejectedContent)
	}
	return nil
}
