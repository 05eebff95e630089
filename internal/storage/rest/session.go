package rest

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils"
	"github.com/the127/resumable/internal/utils/pointer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	statusResumeIncomplete    = 308
	statusClientClosedRequest = 499
)

// session is a resumable upload addressed by its session URL, which doubles
// as the session id.
type session struct {
	client       *Client
	url          string
	nextExpected uint64
	done         bool
}

var _ storage.ResumableUploadSession = (*session)(nil)

func newSession(client *Client, url string) *session {
	return &session{
		client: client,
		url:    url,
	}
}

func (s *session) UploadChunk(ctx context.Context, buffers storage.ConstBufferSequence) (storage.ResumableUploadResponse, error) {
	return s.put(ctx, buffers, nil, storage.HashValues{})
}

func (s *session) UploadFinalChunk(ctx context.Context, buffers storage.ConstBufferSequence, uploadSize uint64, hashes storage.HashValues) (storage.ResumableUploadResponse, error) {
	total := int64(uploadSize)
	return s.put(ctx, buffers, &total, hashes)
}

func (s *session) ResetSession(ctx context.Context) (storage.ResumableUploadResponse, error) {
	req, err := s.client.newRequest(ctx, http.MethodPut, s.url, nil)
	if err != nil {
		return storage.ResumableUploadResponse{}, err
	}
	req.Header.Set("Content-Range", storage.ContentRange{}.String())
	req.ContentLength = 0

	return s.send(req)
}

func (s *session) NextExpectedByte() uint64 {
	return s.nextExpected
}

func (s *session) SessionID() string {
	return s.url
}

func (s *session) Done() bool {
	return s.done
}

func (s *session) put(ctx context.Context, buffers storage.ConstBufferSequence, total *int64, hashes storage.HashValues) (storage.ResumableUploadResponse, error) {
	size := buffers.TotalBytes()

	contentRange := storage.ContentRange{Total: total}
	if size > 0 {
		first := int64(s.nextExpected)
		last := first + int64(size) - 1
		contentRange.First = &first
		contentRange.Last = &last
	}

	readers := make([]io.Reader, 0, len(buffers))
	for _, b := range buffers {
		readers = append(readers, bytes.NewReader(b))
	}

	req, err := s.client.newRequest(ctx, http.MethodPut, s.url, io.MultiReader(readers...))
	if err != nil {
		return storage.ResumableUploadResponse{}, err
	}
	req.ContentLength = int64(size)
	req.Header.Set("Content-Range", contentRange.String())
	if total != nil && !hashes.IsEmpty() {
		req.Header.Set(storage.HeaderHash, storage.FormatHashHeader(hashes))
	}

	return s.send(req)
}

func (s *session) send(req *http.Request) (storage.ResumableUploadResponse, error) {
	resp, err := s.client.do(req)
	if err != nil {
		return storage.ResumableUploadResponse{}, err
	}

	switch {
	case resp.StatusCode == statusResumeIncomplete:
		utils.IgnoreError(resp.Body.Close)

		response := storage.ResumableUploadResponse{
			UploadSessionUrl: s.url,
			UploadState:      storage.UploadInProgress,
		}

		if header := resp.Header.Get("Range"); header != "" {
			committed, ok := storage.ParseCommittedRange(header)
			if !ok {
				return storage.ResumableUploadResponse{}, status.Errorf(codes.Internal, "cannot parse Range header %q", header)
			}
			response.CommittedSize = pointer.To(committed)
			s.nextExpected = committed
		}

		return response, nil

	case isSuccess(resp.StatusCode):
		object, err := decodeObject(resp)
		if err != nil {
			return storage.ResumableUploadResponse{}, err
		}

		s.done = true
		s.nextExpected = object.Size

		return storage.ResumableUploadResponse{
			UploadSessionUrl: s.url,
			UploadState:      storage.UploadDone,
			CommittedSize:    pointer.To(object.Size),
			Payload:          object,
		}, nil

	default:
		return storage.ResumableUploadResponse{}, errorFromResponse(resp)
	}
}
