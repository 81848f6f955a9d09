package filesystem

import (
	"fmt"
	"strings"
)

// 文件名分隔符
const (
	segmentSeparator   = "_"
	extensionSeparator = "."
)

// ParsedFilename 文件名解析结果
type ParsedFilename struct {
	Identity  int64
	Segments  Segments
	Key       string
	Extension string
}

// BuildFilename 拼接文件名：{prefix}_{mid}_{low}[_{key}][.{extension}]
func BuildFilename(segments Segments, key, extension string) string {
	var b strings.Builder
	b.WriteString(segments.Join(segmentSeparator))
	if key != "" {
		b.WriteString(segmentSeparator)
		b.WriteString(key)
	}
	if extension != "" {
		b.WriteString(extensionSeparator)
		b.WriteString(extension)
	}
	return b.String()
}

// ParseFilename 将文件名还原为主键、随机键和扩展名。
//
// 主键段和随机键都不含点，因此第一个点之后的部分就是扩展名。
func ParseFilename(name string) (*ParsedFilename, error) {
	stem, extension := name, ""
	if i := strings.Index(name, extensionSeparator); i >= 0 {
		stem, extension = name[:i], name[i+1:]
	}

	parts := strings.Split(stem, segmentSeparator)
	if len(parts) != 3 && len(parts) != 4 {
		return nil, fmt.Errorf("unrecognized filename: %s", name)
	}

	segments := Segments{parts[0], parts[1], parts[2]}
	id, err := DecodeIdentity(segments)
	if err != nil {
		return nil, fmt.Errorf("unrecognized filename %s: %w", name, err)
	}

	parsed := &ParsedFilename{
		Identity:  id,
		Segments:  segments,
		Extension: extension,
	}
	if len(parts) == 4 {
		if parts[3] == "" {
			return nil, fmt.Errorf("unrecognized filename: %s", name)
		}
		parsed.Key = parts[3]
	}
	return parsed, nil
}
