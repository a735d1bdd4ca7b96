package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const playerClaimsKey contextKey = "player_claims"

// PlayerClaims identifies a joined player for the HTTP surface. Tokens are
// issued at join time and scoped to a single tournament.
type PlayerClaims struct {
	TournamentID string `json:"tournament_id"`
	UserID       string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies player resume tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *TokenManager) IssueResumeToken(tournamentID, userID string) (string, error) {
	now := time.Now()
	claims := PlayerClaims{
		TournamentID: tournamentID,
		UserID:       userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *TokenManager) Parse(tokenString string) (*PlayerClaims, error) {
	claims := &PlayerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Authenticate guards score-submission routes: it requires a Bearer resume
// token and puts the verified claims on the request context.
func (m *TokenManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := m.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), playerClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlayerFromContext returns the claims stored by Authenticate.
func PlayerFromContext(ctx context.Context) (*PlayerClaims, bool) {
	claims, ok := ctx.Value(playerClaimsKey).(*PlayerClaims)
	return claims, ok
}
