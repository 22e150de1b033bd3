package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "guardrail/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience")

func Test_GenerateReviewerToken(t *testing.T) {
	token, err := jwtService.GenerateReviewerToken("reviewer-1", RoleOverdraftReviewer, time.Hour)
	require.NoError(t, err)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer-1", claims.ReviewerID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateReviewerToken("reviewer-1", RoleOverdraftReviewer, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "other-audience")
	token, err := other.GenerateReviewerToken("reviewer-1", RoleOverdraftReviewer, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateReviewer_RequiresRole(t *testing.T) {
	token, err := jwtService.GenerateReviewerToken("viewer-1", "auditor", time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateReviewer(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	token, err = jwtService.GenerateReviewerToken("reviewer-2", RoleOverdraftReviewer, time.Hour)
	require.NoError(t, err)
	id, err := jwtService.ValidateReviewer(token)
	require.NoError(t, err)
	assert.Equal(t, "reviewer-2", id)
}
