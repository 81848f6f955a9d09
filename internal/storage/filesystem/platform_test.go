package filesystem

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPlatformUtils 测试平台兼容性工具
func TestPlatformUtils(t *testing.T) {
	utils := NewPlatformUtils()

	t.Run("base name", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected string
		}{
			{"snail.jpg", "snail.jpg"},
			{"path/to/snail.jpg", "snail.jpg"},
			{"/abs/path/snail.png", "snail.png"},
			{`C:\photos\snail.jpg`, "snail.jpg"},
			{"C:snail.jpg", "snail.jpg"},
			{"dir/", ""},
			{"", ""},
		}

		for _, tc := range testCases {
			assert.Equal(t, tc.expected, utils.BaseName(tc.input), "Input: %s", tc.input)
		}
	})

	t.Run("extension", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected string
		}{
			{"snail.jpg", "jpg"},
			{"archive.tar.gz", "gz"},
			{"README", ""},
			{".bashrc", "bashrc"},
			{"trailing.", ""},
			{"", ""},
		}

		for _, tc := range testCases {
			assert.Equal(t, tc.expected, utils.Extension(tc.input), "Input: %s", tc.input)
		}
	})

	t.Run("validate path", func(t *testing.T) {
		validPaths := []string{
			"data/files",
			"./data/files",
			"/var/files",
			"names..with..dots",
		}
		for _, path := range validPaths {
			assert.NoError(t, utils.ValidatePath(path), "Path should be valid: %s", path)
		}

		invalidPaths := []string{
			"../../../etc/passwd",
			"data/../../etc",
			`data\..\etc`,
			"/" + strings.Repeat("a", utils.GetMaxPathLength()+1),
		}
		for _, path := range invalidPaths {
			assert.Error(t, utils.ValidatePath(path), "Path should be invalid: %s", path)
		}
	})

	t.Run("normalize path", func(t *testing.T) {
		normalized := utils.NormalizePath("data/./files/")
		assert.True(t, filepath.IsAbs(normalized))
		assert.False(t, strings.HasSuffix(normalized, string(filepath.Separator)))
		assert.True(t, strings.HasSuffix(strings.ToLower(normalized), filepath.Join("data", "files")))
	})

	t.Run("join logical path", func(t *testing.T) {
		joined := utils.JoinPath("/var/files", "images/00/01")
		assert.Equal(t, filepath.Join("/var/files", "images", "00", "01"), joined)
	})

	t.Run("case sensitivity", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			assert.False(t, utils.IsCaseSensitive())
		} else {
			assert.True(t, utils.IsCaseSensitive())
		}
	})
}
