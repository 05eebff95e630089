package rest

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/pointer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// readSource streams the body of a download. The body is bound to the
// context of the ReadObject call that opened it.
type readSource struct {
	body     io.ReadCloser
	response storage.HttpResponse

	generation     *int64
	metageneration *int64
	size           *int64
	transformation *string
	hashes         storage.HashValues

	// pending is a read error that arrived together with data.
	pending error
}

var _ storage.ObjectReadSource = (*readSource)(nil)

func newReadSource(resp *http.Response) *readSource {
	source := &readSource{
		body: resp.Body,
		response: storage.HttpResponse{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
		},
		generation:     headerInt64(resp.Header, storage.HeaderGeneration),
		metageneration: headerInt64(resp.Header, storage.HeaderMetageneration),
		size:           headerInt64(resp.Header, storage.HeaderStoredContentLength),
		hashes:         storage.ParseHashHeader(resp.Header.Values(storage.HeaderHash)),
	}

	if transformation := resp.Header.Get(storage.HeaderResponseTransformations); transformation != "" {
		source.transformation = pointer.To(transformation)
	}

	return source
}

func headerInt64(header http.Header, name string) *int64 {
	value := header.Get(name)
	if value == "" {
		return nil
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}

	return &n
}

func (s *readSource) Read(ctx context.Context, buf []byte) (storage.ReadSourceResult, error) {
	if s.body == nil {
		return storage.ReadSourceResult{}, status.Error(codes.FailedPrecondition, "read source is closed")
	}

	if err := ctx.Err(); err != nil {
		return storage.ReadSourceResult{}, status.FromContextError(err).Err()
	}

	var n int
	err := s.pending
	s.pending = nil
	for err == nil && n == 0 && len(buf) > 0 {
		n, err = s.body.Read(buf)
	}

	if n > 0 && isTransportError(err) {
		s.pending = err
		err = nil
	}

	if isTransportError(err) {
		_ = s.body.Close()
		s.body = nil
		return storage.ReadSourceResult{}, status.Errorf(codes.Unavailable, "reading download stream: %v", err)
	}

	result := storage.ReadSourceResult{
		BytesReceived: n,
		Response: storage.HttpResponse{
			StatusCode: storage.ReadStatusContinue,
			Headers:    s.response.Headers,
		},
		Generation:     s.generation,
		Metageneration: s.metageneration,
		Size:           s.size,
		Transformation: s.transformation,
		Hashes:         s.hashes,
	}

	if err != nil {
		result.Response.StatusCode = storage.ReadStatusDone
		_ = s.body.Close()
		s.body = nil
	}

	return result, nil
}

func (s *readSource) IsOpen() bool {
	return s.body != nil
}

func (s *readSource) Close() (storage.HttpResponse, error) {
	if s.body != nil {
		err := s.body.Close()
		s.body = nil
		if err != nil {
			return s.response, status.Errorf(codes.Unavailable, "closing download stream: %v", err)
		}
	}

	return s.response, nil
}
