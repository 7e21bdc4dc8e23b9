package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"matching_service/models"
)

// Claims is the bearer credential payload issued by the user service.
type Claims struct {
	UserID   string `json:"userId"`
	UserRole string `json:"userRole,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 access tokens.
type TokenVerifier struct {
	Secret       []byte
	AllowedRoles []string
}

// Verify parses and validates a raw token. Every failure unwraps to models.ErrAuth
// except a role mismatch, which unwraps to models.ErrForbidden.
func (v *TokenVerifier) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing bearer token", models.ErrAuth)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", models.ErrAuth)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrAuth, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token carries no userId", models.ErrAuth)
	}
	if len(v.AllowedRoles) > 0 && !roleAllowed(v.AllowedRoles, claims.UserRole) {
		return nil, fmt.Errorf("%w: role %q not allowed", models.ErrForbidden, claims.UserRole)
	}
	return claims, nil
}

func roleAllowed(allowed []string, role string) bool {
	for _, r := range allowed {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IssueToken signs an access token. Used by the token command and tests.
func IssueToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		UserRole: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// BearerToken extracts the token from an Authorization header, falling back to the token query parameter.
func BearerToken(header http.Header, query func(string) string) string {
	if auth := header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if query != nil {
		return query("token")
	}
	return ""
}
