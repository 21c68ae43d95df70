package router

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const staffKeyHeader = "X-Staff-Key"

// requireStaffKey gates the staff routes behind a shared key. When expected
// is empty the middleware is a no-op.
func requireStaffKey(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(staffKeyHeader))
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				http.Error(w, `{"error":"invalid staff key"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
