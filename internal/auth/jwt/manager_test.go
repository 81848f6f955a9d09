package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-development-32-chars"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testSecret, "filecargo", 15*time.Minute)
	require.NoError(t, err)
	return m
}

func TestNewManager_SecretTooShort(t *testing.T) {
	_, err := NewManager("short", "filecargo", time.Minute)
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestManager_GenerateAndValidate(t *testing.T) {
	m := newTestManager(t)

	token, err := m.GenerateToken("ops", ScopeRead, ScopeWrite)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "filecargo", claims.Issuer)
	assert.True(t, claims.HasScope(ScopeRead))
	assert.True(t, claims.HasScope(ScopeWrite))
	assert.False(t, claims.HasScope("admin"))
}

func TestManager_ValidateToken_Invalid(t *testing.T) {
	m := newTestManager(t)

	t.Run("格式错误", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("密钥不同", func(t *testing.T) {
		other, err := NewManager(strings.Repeat("x", MinSecretLength), "filecargo", time.Minute)
		require.NoError(t, err)
		token, err := other.GenerateToken("ops", ScopeRead)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("签发者不同", func(t *testing.T) {
		other, err := NewManager(testSecret, "someone-else", time.Minute)
		require.NoError(t, err)
		token, err := other.GenerateToken("ops", ScopeRead)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("签名算法不符", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "filecargo"},
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.ValidateToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestManager_ValidateToken_Expired(t *testing.T) {
	m := newTestManager(t)

	token, err := m.GenerateToken("ops", ScopeRead)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
