package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/alanyoungcy/papertrade/internal/crypto"
)

// AuthConfig selects how operator keys are checked. Key is compared
// directly; Hash and Salt hold a PBKDF2 digest of the key instead. With
// neither set, authentication is disabled.
type AuthConfig struct {
	Key  string
	Hash string
	Salt string
	// Public lists path prefixes served without a key.
	Public []string
}

func (c AuthConfig) enabled() bool {
	return c.Key != "" || c.Hash != ""
}

// Auth returns middleware that validates API requests using either a Bearer
// token in the Authorization header or a static key in the X-API-Key header.
// Verified hashed keys are remembered by their SHA-256 so PBKDF2 runs once
// per distinct key.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	var verified sync.Map

	check := func(token string) bool {
		if cfg.Key != "" {
			return subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Key)) == 1
		}
		sum := sha256.Sum256([]byte(token))
		if _, ok := verified.Load(sum); ok {
			return true
		}
		if !crypto.VerifyAPIKey(token, cfg.Salt, cfg.Hash) {
			return false
		}
		verified.Store(sum, struct{}{})
		return true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.enabled() || r.Method == http.MethodOptions || isPublic(cfg.Public, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}
			if !check(token) {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublic(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
