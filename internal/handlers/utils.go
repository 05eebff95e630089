package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

// PathVar returns an unescaped route variable. Routes are matched on the
// encoded path so object names may contain %2F.
func PathVar(r *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(mux.Vars(r)[name])
	if err != nil {
		return "", storageError.NewStorageError(codes.InvalidArgument).WithMessagef("invalid %s: %v", name, err)
	}

	return value, nil
}

// OptionalInt64Query parses an optional integer query parameter.
func OptionalInt64Query(r *http.Request, name string) (*int64, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return nil, nil
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, storageError.NewStorageError(codes.InvalidArgument).WithMessagef("invalid %s: %q", name, value)
	}

	return &n, nil
}

func OptionalInt64Header(r *http.Request, name string) (*int64, error) {
	value := r.Header.Get(name)
	if value == "" {
		return nil, nil
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return nil, storageError.NewStorageError(codes.InvalidArgument).WithMessagef("invalid %s header: %q", name, value)
	}

	return &n, nil
}

// BaseUrl is the externally visible root of the emulator, used in session
// URLs.
func BaseUrl(r *http.Request) string {
	if config.C.Server.ExternalUrl != "" {
		return strings.TrimSuffix(config.C.Server.ExternalUrl, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return scheme + "://" + r.Host
}

func WriteJson(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logging.Logger.Errorf("failed to encode response: %v", err)
	}
}
