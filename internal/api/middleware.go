package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medigrid/slotbooker/internal/booking"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "identity"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs HTTP requests with method, path, status, duration, and request ID
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		requestID := GetRequestID(r.Context())

		log.Printf(
			"method=%s path=%s status=%d duration=%s request_id=%s",
			r.Method,
			r.URL.Path,
			wrapped.statusCode,
			duration,
			requestID,
		)
	})
}

// IdentityMiddleware extracts the identity context the upstream gateway
// attaches after token validation. This service trusts the headers and does
// no authentication of its own; a request without a usable identity never
// reaches a handler.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := uuid.Parse(r.Header.Get("X-Subject-ID"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing_identity", "X-Subject-ID must be a valid UUID")
			return
		}

		role := booking.Role(r.Header.Get("X-Role"))
		switch role {
		case booking.RoleRequester, booking.RoleProvider, booking.RoleAdmin:
		default:
			writeError(w, http.StatusUnauthorized, "missing_identity", "X-Role must be requester, provider, or admin")
			return
		}

		identity := booking.Identity{SubjectID: subjectID, Role: role}
		if tenantID, err := uuid.Parse(r.Header.Get("X-Tenant-ID")); err == nil {
			identity.TenantID = tenantID
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetIdentity retrieves the trusted identity from context
func GetIdentity(ctx context.Context) (booking.Identity, bool) {
	id, ok := ctx.Value(identityKey).(booking.Identity)
	return id, ok
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
