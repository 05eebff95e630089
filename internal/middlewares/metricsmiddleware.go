package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/the127/resumable/internal/metrics"
)

// MetricsMiddleware counts requests by route template and status code.
func MetricsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := newStatusRecorder(w)
			next.ServeHTTP(recorder, r)

			route := "unknown"
			if current := mux.CurrentRoute(r); current != nil {
				if template, err := current.GetPathTemplate(); err == nil {
					route = r.Method + " " + template
				}
			}

			metrics.EmulatorRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		})
	}
}
