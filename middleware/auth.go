package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"checkout-3ds-api/services/auth"
	"checkout-3ds-api/utils"
)

type contextKey string

const (
	ChallengeContextKey contextKey = "challenge"
	RequestIDContextKey contextKey = "request_id"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ChallengeValidator checks a challenge token against an attempt id.
type ChallengeValidator interface {
	ValidateFor(token, attemptID string) (*auth.ChallengeClaims, error)
}

// ChallengeAuth requires a Bearer challenge token issued for the attempt named
// by the {id} route variable.
func ChallengeAuth(tokens ChallengeValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Printf("Missing Authorization header from %s", r.RemoteAddr)
				utils.SendErrorResponse(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Printf("Invalid Authorization header format from %s", r.RemoteAddr)
				utils.SendErrorResponse(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			attemptID := mux.Vars(r)["id"]
			claims, err := tokens.ValidateFor(parts[1], attemptID)
			if err != nil {
				log.Printf("Challenge token validation failed for attempt %s from %s: %v", attemptID, r.RemoteAddr, err)

				message := "Authentication failed"
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					message = "Token expired"
				case errors.Is(err, auth.ErrInvalidToken):
					message = "Invalid token"
				}
				utils.SendErrorResponse(w, http.StatusUnauthorized, message)
				return
			}

			ctx := context.WithValue(r.Context(), ChallengeContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetChallengeFromContext returns the validated challenge claims, if any.
func GetChallengeFromContext(ctx context.Context) *auth.ChallengeClaims {
	claims, ok := ctx.Value(ChallengeContextKey).(*auth.ChallengeClaims)
	if !ok {
		return nil
	}
	return claims
}

// RequireInternalSecret checks the X-Internal-Secret header. An empty
// configured secret rejects every request.
func RequireInternalSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Internal-Secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				log.Printf("Invalid or missing internal secret from %s", r.RemoteAddr)
				utils.SendErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID tags every request with an id, reusing a well formed incoming one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id, or "-" outside a tagged request.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return id
	}
	return "-"
}
