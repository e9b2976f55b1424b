package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims transfer.CustomClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken("secret", "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "postflow", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)

	other, err := GenerateToken("secret", "user-1", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	_, err = GenerateToken("", "user-1", time.Hour)
	assert.Error(t, err)
	_, err = GenerateToken("secret", "", time.Hour)
	assert.Error(t, err)
}

func TestValidateToken_Rejects(t *testing.T) {
	valid, err := GenerateToken("secret", "user-1", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken("secret", "user-1", -time.Minute)
	require.NoError(t, err)

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	good := transfer.CustomClaims{
		UserID:           "user-1",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "postflow", ExpiresAt: exp},
	}
	withClaims := func(edit func(*transfer.CustomClaims)) transfer.CustomClaims {
		c := good
		edit(&c)
		return c
	}

	tests := []struct {
		name  string
		key   string
		token string
	}{
		{"wrong key", "other-secret", valid},
		{"expired", "secret", expired},
		{"garbage", "secret", "not.a.token"},
		{"other hmac algorithm", "secret", signClaims(t, jwt.SigningMethodHS512, []byte("secret"), good)},
		{"unsigned", "secret", signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, good)},
		{"foreign issuer", "secret", signClaims(t, jwt.SigningMethodHS256, []byte("secret"),
			withClaims(func(c *transfer.CustomClaims) { c.Issuer = "elsewhere" }))},
		{"no expiry", "secret", signClaims(t, jwt.SigningMethodHS256, []byte("secret"),
			withClaims(func(c *transfer.CustomClaims) { c.ExpiresAt = nil }))},
		{"subject mismatch", "secret", signClaims(t, jwt.SigningMethodHS256, []byte("secret"),
			withClaims(func(c *transfer.CustomClaims) { c.Subject = "user-2" }))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.key, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}

	claims, err := ValidateToken("secret", signClaims(t, jwt.SigningMethodHS256, []byte("secret"), good))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}
