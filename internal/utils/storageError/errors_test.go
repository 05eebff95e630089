package storageError

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type StorageErrorTestSuite struct {
	suite.Suite
}

func TestStorageErrorTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(StorageErrorTestSuite))
}

func (s *StorageErrorTestSuite) TestStatusCodeIsVisibleThroughWrapping() {
	// arrange
	err := fmt.Errorf("reading shard: %w", NewStorageError(codes.NotFound).WithMessage("no such object"))

	// act
	code := status.Code(err)

	// assert
	s.Equal(codes.NotFound, code)
	s.True(IsNotFound(err))
}

func (s *StorageErrorTestSuite) TestFromHttpResponseUsesEnvelopeMessage() {
	// arrange
	body := []byte(`{"error":{"code":412,"message":"generation mismatch"}}`)

	// act
	err := FromHttpResponse(http.StatusPreconditionFailed, body)

	// assert
	s.Equal(codes.FailedPrecondition, status.Code(err))
	s.Contains(err.Error(), "generation mismatch")
}

func (s *StorageErrorTestSuite) TestTransientHttpCodes() {
	for _, httpCode := range []int{408, 429, 500, 502, 503} {
		// act
		err := FromHttpResponse(httpCode, nil)

		// assert
		s.Equal(codes.Unavailable, status.Code(err), "http %d", httpCode)
	}

	s.Equal(codes.DeadlineExceeded, status.Code(FromHttpResponse(http.StatusGatewayTimeout, nil)))
}

func (s *StorageErrorTestSuite) TestHandleHttpErrorRendersStatus() {
	// arrange
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/storage/v1/b/bucket/o/object", nil)
	err := status.Error(codes.NotFound, "object not found")

	// act
	HandleHttpError(recorder, request, err)

	// assert
	s.Equal(http.StatusNotFound, recorder.Code)
	s.JSONEq(`{"error":{"code":404,"message":"object not found"}}`, recorder.Body.String())
}

func (s *StorageErrorTestSuite) TestHandleHttpErrorPlainError() {
	// arrange
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodHead, "/", nil)

	// act
	HandleHttpError(recorder, request, errors.New("boom"))

	// assert
	s.Equal(http.StatusInternalServerError, recorder.Code)
	s.Empty(recorder.Body.String())
}
