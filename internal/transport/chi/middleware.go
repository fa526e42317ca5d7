package chi

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantwise-cloud/pestsearch/internal/logger"
)

// requestIDHeader carries the request id back to the caller.
const requestIDHeader = "X-Request-Id"

// RequestIDMiddleware tags every request with a uuid, stores a scoped logger
// in the context and echoes the id in the response headers.
func RequestIDMiddleware(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}

			scoped := base.With(zap.String("request_id", id))
			ctx := logger.ContextWithLogger(r.Context(), scoped)

			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
