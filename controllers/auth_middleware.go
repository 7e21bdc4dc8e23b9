package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"matching_service/models"
	"matching_service/utils"
)

type claimsKey struct{}

// RequireBearer rejects requests without a valid access token and stores the claims on the context
func RequireBearer(verifier *utils.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.Verify(utils.BearerToken(r.Header, nil))
			if err != nil {
				log.Printf("❌ Rejected %s %s: %v", r.Method, r.URL.Path, err)
				if errors.Is(err, models.ErrForbidden) {
					utils.WriteError(w, http.StatusForbidden, "Forbidden")
					return
				}
				utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// ClaimsFrom returns the claims RequireBearer attached, if any
func ClaimsFrom(ctx context.Context) (*utils.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*utils.Claims)
	return claims, ok
}

// authorizeUser checks the caller may act for userID. Without claims (unprotected routes) anyone may.
func authorizeUser(ctx context.Context, userID string) error {
	claims, ok := ClaimsFrom(ctx)
	if !ok || claims.UserID == userID || strings.EqualFold(claims.UserRole, models.RoleAdmin) {
		return nil
	}
	return models.ErrForbidden
}
