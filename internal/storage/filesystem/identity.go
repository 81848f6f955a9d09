package filesystem

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	identityBase       = 36
	identityPadWidth   = 6
	identitySegmentLen = 2
)

// Segments 是主键的三段 base36 表示：[prefix, mid, low]。
//
// 零填充到 6 位保证主键不超过 36^6-1 时目录按主键顺序排列；
// 更大的主键会让 prefix 变长，此时字典序不再等于数值序。
type Segments [3]string

// Prefix 一级目录
func (s Segments) Prefix() string { return s[0] }

// Mid 二级目录
func (s Segments) Mid() string { return s[1] }

// Low 文件名中的最后一段
func (s Segments) Low() string { return s[2] }

// Join 用分隔符连接三段
func (s Segments) Join(sep string) string {
	return strings.Join(s[:], sep)
}

// EncodeIdentity 将主键转换为三段 base36 字符串。
//
// 例如 1947 -> "1i3" -> "0001i3" -> ["00", "01", "i3"]。
// 从右向左截取，超过 6 位的部分全部留在 prefix 中，不会截断。
func EncodeIdentity(id int64) (Segments, error) {
	if id < 0 {
		return Segments{}, fmt.Errorf("identity must be non-negative: %d", id)
	}

	encoded := strconv.FormatInt(id, identityBase)
	if pad := identityPadWidth - len(encoded); pad > 0 {
		encoded = strings.Repeat("0", pad) + encoded
	}

	n := len(encoded)
	return Segments{
		encoded[:n-2*identitySegmentLen],
		encoded[n-2*identitySegmentLen : n-identitySegmentLen],
		encoded[n-identitySegmentLen:],
	}, nil
}

// DecodeIdentity 是 EncodeIdentity 的逆操作
func DecodeIdentity(s Segments) (int64, error) {
	if len(s.Prefix()) < identitySegmentLen || len(s.Mid()) != identitySegmentLen || len(s.Low()) != identitySegmentLen {
		return 0, fmt.Errorf("malformed identity segments: %v", [3]string(s))
	}

	id, err := strconv.ParseInt(s.Join(""), identityBase, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed identity segments %v: %w", [3]string(s), err)
	}

	// 拒绝非规范形式（大写、符号、多余的前导零）
	if canonical, err := EncodeIdentity(id); err != nil || canonical != s {
		return 0, fmt.Errorf("non-canonical identity segments: %v", [3]string(s))
	}
	return id, nil
}
