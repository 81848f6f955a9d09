package filesystem

import (
	"math/rand/v2"
)

// KeyAlphabet 随机键字符集：去掉元音、0、1、l、O，避免混淆和拼出单词
const KeyAlphabet = "bcdfghjkmnpqrstvwxyz23456789"

// DefaultKeyLength 默认随机键长度
const DefaultKeyLength = 6

// GenerateKey 生成指定长度的随机键，每一位独立均匀抽取。
//
// 不保证唯一性，实际唯一性依赖于与主键组合使用。
func GenerateKey(length int) string {
	if length <= 0 {
		length = DefaultKeyLength
	}

	buf := make([]byte, length)
	for i := range buf {
		buf[i] = KeyAlphabet[rand.IntN(len(KeyAlphabet))]
	}
	return string(buf)
}
