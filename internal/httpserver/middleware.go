package httpserver

import (
	"context"
	"net/http"
	"strings"

	"noren-gateway/internal/httputil"
	"noren-gateway/internal/sessions"
)

type ctxKey string

const tokenKey ctxKey = "gateway_token"

// WithAuth rejects requests lacking a valid bearer token before any handler
// work happens. The gateway token ends up in the request context.
func WithAuth(store *sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing bearer token"})
				return
			}
			if _, err := store.Lookup(parts[1]); err != nil {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid or expired token"})
				return
			}
			ctx := context.WithValue(r.Context(), tokenKey, parts[1])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Token(r *http.Request) (string, bool) {
	v := r.Context().Value(tokenKey)
	if v == nil {
		return "", false
	}
	t, ok := v.(string)
	return t, ok
}
