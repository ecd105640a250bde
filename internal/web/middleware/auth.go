package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/korhy/cookbook/internal/config"
	"github.com/korhy/cookbook/internal/logging"
)

type authError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIKeyAuth checks the X-API-Key header against the configured keys.
// With RequireAPIKey off every request passes; with it on and no keys
// configured every request is refused.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch key := r.Header.Get("X-API-Key"); {
			case key == "":
				reject(w, r, http.StatusUnauthorized, authError{"missing API key", "AUTH_MISSING_KEY"})
			case !keyMatches(key, cfg.APIKeys):
				reject(w, r, http.StatusForbidden, authError{"invalid API key", "AUTH_INVALID_KEY"})
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, status int, body authError) {
	logging.FromContext(r.Context()).Warn("import request refused",
		"reason", body.Code,
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// keyMatches compares against every configured key in constant time.
func keyMatches(key string, keys []string) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return match == 1
}
