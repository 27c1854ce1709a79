package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certverify/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "certverify", "certverify-api")

func Test_GenerateVerifierToken(t *testing.T) {
	token, err := jwtService.GenerateVerifierToken("reviewer-1", "Asha", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer-1", claims.Subject)
	assert.Equal(t, "Asha", claims.Name)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_ReturnsSubject(t *testing.T) {
	token, err := jwtService.GenerateVerifierToken("reviewer-2", "", time.Hour)
	require.NoError(t, err)

	subject, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer-2", subject)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateVerifierToken("reviewer-1", "", -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.Message(err))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("another-key", "certverify", "certverify-api")
	token, err := other.GenerateVerifierToken("reviewer-1", "", time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "certverify", "someone-else")
	token, err := other.GenerateVerifierToken("reviewer-1", "", time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_GenerateVerifierToken_RequiresSubject(t *testing.T) {
	_, err := jwtService.GenerateVerifierToken(" ", "", time.Hour)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
