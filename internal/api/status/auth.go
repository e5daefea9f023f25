package status

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	// TokenHeader is the header carrying the status API token.
	TokenHeader = "X-Admin-Token"
)

// NewTokenAuth wraps next so that requests must carry token, either in
// TokenHeader or as a bearer token. An empty token disables the check.
func NewTokenAuth(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(TokenHeader)
		if got == "" {
			got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
