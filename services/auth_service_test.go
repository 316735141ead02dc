package services

import (
	"errors"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)
	token, err := auth.IssueAdminToken("conn-1", "code-hash")
	assert.Equal(t, nil, err)

	claims, err := auth.VerifyAdminToken(token, "code-hash")
	assert.Equal(t, nil, err)
	assert.Equal(t, "conn-1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "teamquiz", claims.Issuer)
}

func TestAdminTokenExpires(t *testing.T) {
	auth := NewAuthService("secret", time.Minute)
	issued := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issued }
	token, err := auth.IssueAdminToken("conn-1", "code-hash")
	assert.Equal(t, nil, err)

	auth.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = auth.VerifyAdminToken(token, "code-hash")
	assert.T(t, errors.Is(err, ErrInvalidToken))
	assert.T(t, IsAdminError(err))
}

func TestAdminTokenWrongSecret(t *testing.T) {
	token, err := NewAuthService("one", time.Hour).IssueAdminToken("conn-1", "code-hash")
	assert.Equal(t, nil, err)

	_, err = NewAuthService("two", time.Hour).VerifyAdminToken(token, "code-hash")
	assert.Equal(t, ErrInvalidToken, err)

	_, err = NewAuthService("two", time.Hour).VerifyAdminToken("", "code-hash")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestAdminTokenBoundToCode(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)
	token, err := auth.IssueAdminToken("conn-1", "old-code-hash")
	assert.Equal(t, nil, err)

	_, err = auth.VerifyAdminToken(token, "new-code-hash")
	assert.Equal(t, ErrInvalidToken, err)
	_, err = auth.VerifyAdminToken(token, "")
	assert.Equal(t, ErrInvalidToken, err)
}
