package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth returns middleware that requires HTTP Basic credentials on every
// path except those listed in open.
func BasicAuth(username, password string, open ...string) func(http.Handler) http.Handler {
	exempt := make(map[string]struct{}, len(open))
	for _, p := range open {
		exempt[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			u, p, ok := r.BasicAuth()
			if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="famboard", charset="UTF-8"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
