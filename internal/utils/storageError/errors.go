package storageError

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/the127/resumable/internal/args"
	"github.com/the127/resumable/internal/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StorageError is a status error that also knows how it is rendered over
// HTTP. status.Code understands it through GRPCStatus.
type StorageError struct {
	HttpCode int               `json:"code"`
	Code     codes.Code        `json:"-"`
	Message  string            `json:"message,omitempty"`
	Headers  map[string]string `json:"-"`
}

func NewStorageError(code codes.Code) *StorageError {
	return &StorageError{
		HttpCode: HttpStatusFromCode(code),
		Code:     code,
		Headers:  make(map[string]string),
	}
}

func (e *StorageError) WithMessage(message string) *StorageError {
	e.Message = message
	return e
}

func (e *StorageError) WithMessagef(format string, a ...any) *StorageError {
	e.Message = fmt.Sprintf(format, a...)
	return e
}

func (e *StorageError) WithHttpCode(httpCode int) *StorageError {
	e.HttpCode = httpCode
	return e
}

func (e *StorageError) WithHeader(key, value string) *StorageError {
	e.Headers[key] = value
	return e
}

func (e *StorageError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}

	return e.Message
}

func (e *StorageError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Error())
}

func HttpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Aborted, codes.AlreadyExists:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return 499
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func CodeFromHttpStatus(httpCode int) codes.Code {
	switch {
	case httpCode < 300:
		return codes.OK
	case httpCode == http.StatusBadRequest:
		return codes.InvalidArgument
	case httpCode == http.StatusUnauthorized:
		return codes.Unauthenticated
	case httpCode == http.StatusForbidden:
		return codes.PermissionDenied
	case httpCode == http.StatusNotFound:
		return codes.NotFound
	case httpCode == http.StatusRequestTimeout:
		return codes.Unavailable
	case httpCode == http.StatusConflict:
		return codes.Aborted
	case httpCode == http.StatusPreconditionFailed:
		return codes.FailedPrecondition
	case httpCode == http.StatusRequestedRangeNotSatisfiable:
		return codes.OutOfRange
	case httpCode == http.StatusTooManyRequests:
		return codes.Unavailable
	case httpCode == 499:
		return codes.Canceled
	case httpCode == http.StatusNotImplemented:
		return codes.Unimplemented
	case httpCode == http.StatusInternalServerError,
		httpCode == http.StatusBadGateway,
		httpCode == http.StatusServiceUnavailable:
		return codes.Unavailable
	case httpCode == http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case httpCode >= 500:
		return codes.Internal
	default:
		return codes.InvalidArgument
	}
}

type envelope struct {
	Error *StorageError `json:"error"`
}

// FromHttpResponse turns a non-success response into a status error,
// preferring the message of a JSON error envelope when there is one.
func FromHttpResponse(httpCode int, body []byte) error {
	message := http.StatusText(httpCode)

	var e envelope
	if err := json.Unmarshal(body, &e); err == nil && e.Error != nil && e.Error.Message != "" {
		message = e.Error.Message
	} else if len(body) > 0 && len(body) < 1024 {
		message = string(body)
	}

	return NewStorageError(CodeFromHttpStatus(httpCode)).
		WithHttpCode(httpCode).
		WithMessagef("%s (HTTP %d)", message, httpCode)
}

func HandleHttpError(w http.ResponseWriter, r *http.Request, err error) {
	var storageError *StorageError
	if !errors.As(err, &storageError) {
		s, ok := status.FromError(err)
		switch {
		case ok && s.Code() != codes.Unknown:
			storageError = NewStorageError(s.Code()).WithMessage(s.Message())

		case args.IsProduction():
			storageError = NewStorageError(codes.Internal).WithMessage("Internal Server Error")

		default:
			storageError = NewStorageError(codes.Internal).WithMessage(err.Error())
		}
	}

	for k, v := range storageError.Headers {
		w.Header().Set(k, v)
	}

	logging.Logger.Errorf("HTTP Error: %d %s", storageError.HttpCode, storageError.Error())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(storageError.HttpCode)

	if r.Method == http.MethodHead {
		return
	}

	err = json.NewEncoder(w).Encode(envelope{Error: storageError})
	if err != nil {
		logging.Logger.Errorf("failed to encode error response: %v", err)
	}
}

func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
