package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/card-connector/pkg/logger"
)

const CorrelationIDHeader = "X-Correlation-ID"

// correlationHeaders are checked in order; the first non-empty value wins.
var correlationHeaders = []string{CorrelationIDHeader, "X-Request-ID", "X-Trace-ID"}

func CorrelationID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := ""
			for _, header := range correlationHeaders {
				if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
					correlationID = v
					break
				}
			}
			if correlationID == "" {
				correlationID = uuid.NewString()
			}

			w.Header().Set(CorrelationIDHeader, correlationID)

			ctx := WithCorrelationID(r.Context(), correlationID)
			if logg != nil {
				ctx = logg.WithCorrelationID(ctx, correlationID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
