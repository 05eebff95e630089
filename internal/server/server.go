package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/The127/ioc"
	gh "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/handlers/objecthandlers"
	"github.com/the127/resumable/internal/handlers/uploadhandlers"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

// NewHandler builds the emulator router on top of the root dependency
// provider.
func NewHandler(root *ioc.DependencyProvider, serverConfig config.ServerConfig) http.Handler {
	r := mux.NewRouter()
	r.UseEncodedPath()

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Logger.Infof("Not found API Request: %s %s", r.Method, r.URL.Path)
		storageError.HandleHttpError(w, r, storageError.NewStorageError(codes.NotFound).
			WithMessage("route not found"))
	})

	r.Use(middlewares.RecoverMiddleware())
	r.Use(middlewares.LoggingMiddleware())
	r.Use(middlewares.MetricsMiddleware())
	r.Use(middlewares.ScopeMiddleware(root))

	if len(serverConfig.AllowedOrigins) > 0 {
		r.Use(gh.CORS(
			gh.AllowedOrigins(serverConfig.AllowedOrigins),
			gh.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE"}),
			gh.AllowedHeaders([]string{"Content-Type", "Content-Range", "X-Goog-Hash", "X-Upload-Content-Length", "X-Upload-Content-Type"}),
			gh.ExposedHeaders([]string{"Location", "Range", "X-Goog-Generation", "X-Goog-Hash"}),
			gh.MaxAge(3600),
		))
	}

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	mapUploadApi(r)
	mapJsonApi(r)

	return r
}

func mapUploadApi(r *mux.Router) {
	uploadRouter := r.PathPrefix("/upload/storage/v1/b/{bucket}").Subrouter()

	uploadRouter.HandleFunc("/o", uploadhandlers.StartUpload).Methods(http.MethodPost, http.MethodOptions)
	uploadRouter.HandleFunc("/o", uploadhandlers.UploadChunk).Methods(http.MethodPut, http.MethodOptions)
	uploadRouter.HandleFunc("/o", uploadhandlers.CancelUpload).Methods(http.MethodDelete, http.MethodOptions)
}

func mapJsonApi(r *mux.Router) {
	apiRouter := r.PathPrefix("/storage/v1/b/{bucket}").Subrouter()

	apiRouter.HandleFunc("/o/{object:.+}/compose", objecthandlers.ComposeObject).Methods(http.MethodPost, http.MethodOptions)
	apiRouter.HandleFunc("/o/{object:.+}", objecthandlers.GetObject).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	apiRouter.HandleFunc("/o/{object:.+}", objecthandlers.DeleteObject).Methods(http.MethodDelete, http.MethodOptions)
}

// Serve runs the emulator until ctx is done.
func Serve(ctx context.Context, root *ioc.DependencyProvider, serverConfig config.ServerConfig) error {
	addr := fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port)
	logging.Logger.Infof("Starting server on %s", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: NewHandler(root, serverConfig),
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("error while running server: %w", err)

	case <-ctx.Done():
		logging.Logger.Infof("Shutting down server")
		err := srv.Shutdown(context.Background())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	}
}
