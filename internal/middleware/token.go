package middleware

import (
	"crypto/subtle"
	"net/http"
)

const invalidTokenBody = "<response>Invalid token</response>"

// RequireToken guards a handler with the gateway shared secret. The token
// arrives as a query or form parameter; a mismatch is rejected before any
// core logic runs, with the XML body the gateway expects.
func RequireToken(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.FormValue("token")
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			w.Header().Set("Content-Type", "application/xml;charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(invalidTokenBody))
			return
		}
		next.ServeHTTP(w, r)
	})
}
