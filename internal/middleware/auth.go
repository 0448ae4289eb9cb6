package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/cortexai/coursebot/internal/models"
)

// Auth requires one of apiKeys in headerName (or the api_key cookie) on every
// request except paths in public. The accepted key is stored in the context.
func Auth(apiKeys []string, headerName string, public ...string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	publicPaths := make(map[string]bool, len(public))
	for _, p := range public {
		publicPaths[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerName)
			if key == "" {
				if c, err := r.Cookie("api_key"); err == nil {
					key = c.Value
				}
			}

			if key == "" {
				models.WriteError(w, http.StatusUnauthorized, "API key required")
				return
			}
			if !validKey(keys, key) {
				models.WriteError(w, http.StatusForbidden, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), apiKeyKey, key)))
		})
	}
}

func validKey(keys [][]byte, key string) bool {
	k := []byte(key)
	for _, candidate := range keys {
		if subtle.ConstantTimeCompare(candidate, k) == 1 {
			return true
		}
	}
	return false
}
