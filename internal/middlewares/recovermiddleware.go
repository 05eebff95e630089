package middlewares

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

func RecoverMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					// aborted bodies are injected faults, let net/http drop the connection
					if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
						panic(err)
					}

					logging.Logger.Errorf("recovered from panic: %v", err)
					storageError.HandleHttpError(w, r, storageError.NewStorageError(codes.Internal).
						WithMessage(fmt.Sprintf("%v", err)))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
