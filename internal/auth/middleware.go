package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Naiemjoy1/mfs-server/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenParser turns a bearer token into a verified identity.
type TokenParser interface {
	Parse(raw string) (domain.Identity, error)
}

// Middleware rejects requests without a valid bearer token and stores the
// verified identity in the request context.
func Middleware(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "Forbidden access")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")
			if raw == header || strings.TrimSpace(raw) == "" {
				unauthorized(w, "Forbidden access")
				return
			}

			id, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				unauthorized(w, "Unauthorized access")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
