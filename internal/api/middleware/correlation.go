package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/notifyhub/notification-relay/internal/domain"
)

const (
	CorrelationHeader = "X-Correlation-ID"

	// maxCorrelationIDLen caps client-supplied ids; longer ones are replaced.
	maxCorrelationIDLen = 128
)

// CorrelationID takes the caller's X-Correlation-ID or generates a UUID,
// stores it on the request context and echoes it in the response. Intake
// copies it onto the queue message so worker logs carry the same id.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" || len(id) > maxCorrelationIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(domain.WithCorrelationID(r.Context(), id)))
	})
}

// GetCorrelationID returns "" if the middleware was not applied.
func GetCorrelationID(ctx context.Context) string {
	return domain.CorrelationID(ctx)
}
