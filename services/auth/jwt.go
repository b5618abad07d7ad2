package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ChallengeTokenDuration bounds how long a browser may post a challenge result.
const ChallengeTokenDuration = 10 * time.Minute

const challengeTokenType = "challenge"

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// ChallengeClaims binds a token to one verification attempt.
type ChallengeClaims struct {
	AttemptID string `json:"attempt_id"`
	SessionID string `json:"session_id,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// ChallengeTokenService issues the tokens a browser presents when it posts the
// result of an issuer challenge.
type ChallengeTokenService struct {
	secretKey []byte
	issuer    string
	duration  time.Duration
	now       func() time.Time
}

func NewChallengeTokenService(secretKey, issuer string, duration time.Duration) *ChallengeTokenService {
	if duration <= 0 {
		duration = ChallengeTokenDuration
	}
	return &ChallengeTokenService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		duration:  duration,
		now:       time.Now,
	}
}

// Issue signs a token for the attempt. The session id is optional.
func (s *ChallengeTokenService) Issue(attemptID, sessionID string) (string, time.Time, error) {
	if attemptID == "" {
		return "", time.Time{}, errors.New("attempt id is required")
	}

	now := s.now()
	expiresAt := now.Add(s.duration)
	claims := ChallengeClaims{
		AttemptID: attemptID,
		SessionID: sessionID,
		TokenType: challengeTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   attemptID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing challenge token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses a challenge token and returns its claims.
func (s *ChallengeTokenService) Validate(tokenString string) (*ChallengeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChallengeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ChallengeClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != challengeTokenType || claims.AttemptID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateFor checks the token was issued for the given attempt.
func (s *ChallengeTokenService) ValidateFor(tokenString, attemptID string) (*ChallengeClaims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.AttemptID != attemptID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
