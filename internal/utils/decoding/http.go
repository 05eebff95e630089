package decoding

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

func badRequest(format string, a ...any) error {
	return storageError.NewStorageError(codes.InvalidArgument).WithMessagef(format, a...)
}

// HttpBodyAsJson decodes a JSON request body. An empty body is accepted when
// allowEmpty is set, since object metadata on upload initiation is optional.
func HttpBodyAsJson(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	contentTypeHeader := r.Header.Get("Content-Type")
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentTypeHeader, ";")[0]))
	if mediaType != "application/json" && !(allowEmpty && mediaType == "") {
		return badRequest("expected application/json, got %s", contentTypeHeader)
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	decoder := json.NewDecoder(r.Body)

	err := decoder.Decode(v)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {

		case errors.As(err, &syntaxError):
			return badRequest("invalid JSON syntax at position %d", syntaxError.Offset)

		// https://github.com/golang/go/issues/25956.
		case errors.Is(err, io.ErrUnexpectedEOF):
			return badRequest("invalid JSON syntax")

		case errors.As(err, &unmarshalTypeError):
			return badRequest("invalid JSON syntax for field %q (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)

		case errors.Is(err, io.EOF):
			if allowEmpty {
				return nil
			}
			return badRequest("request body is empty")

		case errors.As(err, &maxBytesError):
			return badRequest("request body is too large")

		default:
			return fmt.Errorf("failed to decode request body: %w", err)
		}
	}

	return ensureNoTrailingData(decoder)
}

func ensureNoTrailingData(decoder *json.Decoder) error {
	err := decoder.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return badRequest("unexpected trailing data")
	}

	return nil
}
