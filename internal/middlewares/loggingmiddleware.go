package middlewares

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/the127/resumable/internal/logging"
)

func LoggingMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := newStatusRecorder(w)

			next.ServeHTTP(recorder, r)

			logging.Logger.Infow("API Request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"bytes", recorder.written,
				"duration", time.Since(start))
		})
	}
}
