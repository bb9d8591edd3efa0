// Package middleware provides HTTP middleware for the Inkwell API.
package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const ownerKey contextKey = "owner_id"

// Owner extracts the caller identity from the X-Owner-ID header and stores
// it on the request context. Requests without an identity are rejected.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get("X-Owner-ID")
		if ownerID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"X-Owner-ID header is required"}`))
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerFromContext returns the caller identity set by Owner.
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey).(string); ok {
		return v
	}
	return ""
}
