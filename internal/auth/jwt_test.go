package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret")

	token, err := svc.GenerateToken("u1", "u1@example.com", "SUPERVISOR", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "u1@example.com", claims.Email)
	require.Equal(t, "SUPERVISOR", claims.Role)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewJWTService("test-secret")

	token, err := svc.GenerateToken("u1", "u1@example.com", "ADMIN", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a").GenerateToken("u1", "u1@example.com", "ADMIN", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractTokenFromBearer(t *testing.T) {
	require.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	require.Empty(t, ExtractTokenFromBearer("abc"))
	require.Empty(t, ExtractTokenFromBearer(""))
	require.Empty(t, ExtractTokenFromBearer("Bearer "))
}
