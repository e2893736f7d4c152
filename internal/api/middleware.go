// Package api implements the capture REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"
)

// Auth configures owner resolution for every request.
//
// When Enabled is false all requests run as DefaultOwner. When it is true a
// request must carry "Authorization: Bearer <token>" for a token in Tokens,
// and runs as the owner that token maps to.
type Auth struct {
	Enabled      bool
	Tokens       map[string]int64
	DefaultOwner int64
}

type ownerKey struct{}

// WithOwner returns a context carrying the owner id.
func WithOwner(ctx context.Context, owner int64) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner id set by AuthMiddleware.
func OwnerFrom(ctx context.Context) (int64, bool) {
	owner, ok := ctx.Value(ownerKey{}).(int64)
	return owner, ok
}

// OwnerFromRequest adapts OwnerFrom for handlers that only see the request.
func OwnerFromRequest(r *http.Request) (int64, bool) {
	return OwnerFrom(r.Context())
}

// AuthMiddleware resolves the request owner or rejects the request with 401.
func AuthMiddleware(auth Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Enabled {
				next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), auth.DefaultOwner)))
				return
			}
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			owner, known := auth.Tokens[token]
			if !ok || token == "" || !known {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}
