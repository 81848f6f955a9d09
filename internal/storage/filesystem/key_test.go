package filesystem

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	t.Run("default length", func(t *testing.T) {
		assert.Len(t, GenerateKey(0), DefaultKeyLength)
		assert.Len(t, GenerateKey(-3), DefaultKeyLength)
		assert.Len(t, GenerateKey(12), 12)
	})

	t.Run("alphabet only", func(t *testing.T) {
		assert.Len(t, KeyAlphabet, 28)
		for i := 0; i < 500; i++ {
			for _, r := range GenerateKey(DefaultKeyLength) {
				assert.True(t, strings.ContainsRune(KeyAlphabet, r), "unexpected rune %q", r)
			}
		}
	})

	t.Run("ambiguous characters never appear", func(t *testing.T) {
		for i := 0; i < 500; i++ {
			assert.NotContains(t, GenerateKey(8), "0")
			assert.NotContains(t, GenerateKey(8), "1")
			assert.NotContains(t, GenerateKey(8), "l")
			assert.NotContains(t, GenerateKey(8), "a")
		}
	})

	t.Run("every character is reachable", func(t *testing.T) {
		seen := make(map[rune]bool)
		for i := 0; i < 2000; i++ {
			for _, r := range GenerateKey(DefaultKeyLength) {
				seen[r] = true
			}
		}
		assert.Len(t, seen, len(KeyAlphabet))
	})
}
