package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeToken_RoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewChallengeTokenService("secret", "checkout-3ds-api", time.Minute)
	token, expiresAt, err := svc.Issue("att_1", "sess_1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateFor(token, "att_1")
	require.NoError(t, err)
	assert.Equal(t, "att_1", claims.AttemptID)
	assert.Equal(t, "sess_1", claims.SessionID)
}

func TestChallengeToken_WrongAttempt(t *testing.T) {
	t.Parallel()

	svc := NewChallengeTokenService("secret", "checkout-3ds-api", time.Minute)
	token, _, err := svc.Issue("att_1", "")
	require.NoError(t, err)

	_, err = svc.ValidateFor(token, "att_2")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestChallengeToken_Expired(t *testing.T) {
	t.Parallel()

	svc := NewChallengeTokenService("secret", "checkout-3ds-api", time.Minute)
	issued := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return issued }
	token, _, err := svc.Issue("att_1", "")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestChallengeToken_Invalid(t *testing.T) {
	t.Parallel()

	svc := NewChallengeTokenService("secret", "checkout-3ds-api", time.Minute)
	other := NewChallengeTokenService("other-secret", "checkout-3ds-api", time.Minute)

	token, _, err := other.Issue("att_1", "")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = svc.Issue("", "")
	assert.Error(t, err)
}

func TestChallengeToken_WrongType(t *testing.T) {
	t.Parallel()

	svc := NewChallengeTokenService("secret", "checkout-3ds-api", time.Minute)
	claims := ChallengeClaims{
		AttemptID: "att_1",
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "checkout-3ds-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
