package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/clinicapi"
)

type contextKey string

const sessionKey contextKey = "clinicSession"

// Session lifts the caller identity off the request: the bearer token is
// forwarded to the backend untouched and X-Patient-ID names the patient.
// Verifying either is the backend's job.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s clinicapi.Session
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			s.Token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		if raw := strings.TrimSpace(r.Header.Get("X-Patient-ID")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusBadRequest, "invalid X-Patient-ID")
				return
			}
			s.PatientID = id
			s.Role = "patient"
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequirePatient rejects requests without a patient session.
func RequirePatient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := SessionFrom(r.Context()); !ok || !s.IsPatient() {
			writeError(w, http.StatusUnauthorized, "patient session required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithSession stores s on ctx.
func WithSession(ctx context.Context, s clinicapi.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom returns the session stored by Session.
func SessionFrom(ctx context.Context) (clinicapi.Session, bool) {
	s, ok := ctx.Value(sessionKey).(clinicapi.Session)
	return s, ok
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
