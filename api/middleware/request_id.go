package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 128
)

// RequestID echoes or mints X-Request-Id and attaches it, plus any
// X-Client-Id, to the request context.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if reqID == "" || len(reqID) > maxRequestIDLen {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			if clientID := strings.TrimSpace(r.Header.Get(clientIDHeader)); clientID != "" {
				ctx = WithClientID(ctx, clientID)
				if logg != nil {
					ctx = logg.WithField(ctx, "client_id", clientID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
