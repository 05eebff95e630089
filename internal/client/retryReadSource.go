package client

import (
	"context"

	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/metrics"
	"github.com/the127/resumable/internal/retry"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/pointer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type offsetDirection int

const (
	fromBeginning offsetDirection = iota
	fromEnd
)

// RetryObjectReadSource resumes a download after transient failures. One
// retry policy covers the whole download so a flaky connection cannot keep
// it alive forever.
type RetryObjectReadSource struct {
	client  storage.RawClient
	request storage.ReadObjectRangeRequest
	child   storage.ObjectReadSource

	retryPolicy   retry.Policy
	backoffPolicy retry.BackoffPolicy

	direction  offsetDirection
	offset     int64
	delivered  int64
	generation *int64
	gunzipped  bool
}

var _ storage.ObjectReadSource = (*RetryObjectReadSource)(nil)

// NewRetryObjectReadSource opens the download, retrying the initial request
// under the same budget used for later reconnects.
func NewRetryObjectReadSource(ctx context.Context, client storage.RawClient, request storage.ReadObjectRangeRequest, retryPolicy retry.Policy, backoffPolicy retry.BackoffPolicy) (*RetryObjectReadSource, error) {
	r := &RetryObjectReadSource{
		client:        client,
		request:       request,
		retryPolicy:   retryPolicy.Clone(),
		backoffPolicy: backoffPolicy,
		generation:    pointer.Clone(request.Generation),
	}

	switch {
	case request.ReadLast != nil:
		r.direction = fromEnd
		r.offset = *request.ReadLast
	case request.ReadRange != nil:
		r.offset = request.ReadRange.Begin
	default:
		r.offset = request.ReadFromOffset
	}

	backoff := r.backoffPolicy.Clone()
	for {
		err := r.reconnect(ctx)
		if err == nil {
			return r, nil
		}

		if !r.retryPolicy.OnFailure(err) {
			return nil, terminalError("ReadObject", r.retryPolicy, err)
		}

		if err := r.sleep(ctx, backoff, err); err != nil {
			return nil, err
		}
	}
}

func (r *RetryObjectReadSource) Read(ctx context.Context, buf []byte) (storage.ReadSourceResult, error) {
	if r.child == nil {
		return storage.ReadSourceResult{}, status.Error(codes.FailedPrecondition, "read source is closed")
	}

	result, err := r.child.Read(ctx, buf)
	if err == nil {
		r.observe(result)
		return result, nil
	}

	backoff := r.backoffPolicy.Clone()
	for {
		if !r.retryPolicy.OnFailure(err) {
			r.closeChild()
			return storage.ReadSourceResult{}, terminalError("Read()", r.retryPolicy, err)
		}

		if sleepErr := r.sleep(ctx, backoff, err); sleepErr != nil {
			r.closeChild()
			return storage.ReadSourceResult{}, sleepErr
		}

		metrics.ReadReconnects.WithLabelValues(r.reconnectReason()).Inc()
		err = r.reconnect(ctx)
		if err != nil {
			continue
		}

		result, err = r.child.Read(ctx, buf)
		if err == nil {
			r.observe(result)
			return result, nil
		}
	}
}

func (r *RetryObjectReadSource) IsOpen() bool {
	return r.child != nil && r.child.IsOpen()
}

func (r *RetryObjectReadSource) Close() (storage.HttpResponse, error) {
	if r.child == nil {
		return storage.HttpResponse{}, nil
	}

	response, err := r.child.Close()
	r.child = nil
	return response, err
}

// Generation is the object generation pinned by the first response.
func (r *RetryObjectReadSource) Generation() *int64 {
	return r.generation
}

func (r *RetryObjectReadSource) Transcoded() bool {
	return r.gunzipped
}

func (r *RetryObjectReadSource) observe(result storage.ReadSourceResult) {
	if r.generation == nil && result.Generation != nil {
		r.generation = pointer.To(*result.Generation)
	}

	if result.Transformation != nil && *result.Transformation == storage.TranscodingGunzipped {
		r.gunzipped = true
	}

	n := int64(result.BytesReceived)
	r.delivered += n
	if r.direction == fromEnd {
		r.offset -= n
	} else {
		r.offset += n
	}
}

func (r *RetryObjectReadSource) resumeRequest() storage.ReadObjectRangeRequest {
	request := r.request
	request.Generation = pointer.Clone(r.generation)

	if r.gunzipped {
		// Transcoded downloads always start over.
		request.ReadFromOffset = 0
		request.ReadRange = nil
		request.ReadLast = nil
		return request
	}

	switch {
	case r.direction == fromEnd:
		request.ReadLast = pointer.To(r.offset)
	case request.ReadRange != nil:
		request.ReadRange = &storage.ReadRange{Begin: r.offset, End: request.ReadRange.End}
	default:
		request.ReadFromOffset = r.offset
	}
	return request
}

func (r *RetryObjectReadSource) reconnect(ctx context.Context) error {
	r.closeChild()

	child, err := r.client.ReadObject(ctx, r.resumeRequest())
	if err != nil {
		return err
	}

	if r.gunzipped && r.delivered > 0 {
		err = discard(ctx, child, r.delivered)
		if err != nil {
			_, _ = child.Close()
			return err
		}
	}

	r.child = child
	return nil
}

// discard drops the first n bytes of a restarted transcoded download.
func discard(ctx context.Context, source storage.ObjectReadSource, n int64) error {
	scratch := make([]byte, min(n, 64*1024))
	for n > 0 {
		result, err := source.Read(ctx, scratch[:min(n, int64(len(scratch)))])
		if err != nil {
			return err
		}

		n -= int64(result.BytesReceived)
		if n > 0 && result.Response.StatusCode == storage.ReadStatusDone {
			return status.Errorf(codes.Unavailable, "download ended %d bytes before the resume offset", n)
		}
	}
	return nil
}

func (r *RetryObjectReadSource) sleep(ctx context.Context, backoff retry.BackoffPolicy, cause error) error {
	delay := backoff.OnCompletion()
	logging.Logger.Warnf("reading gs://%s/%s failed at offset %d, retrying in %s: %v", r.request.Bucket, r.request.Object, r.offset, delay, cause)
	return retry.Sleep(ctx, delay)
}

func (r *RetryObjectReadSource) closeChild() {
	if r.child != nil {
		_, _ = r.child.Close()
		r.child = nil
	}
}

func (r *RetryObjectReadSource) reconnectReason() string {
	if r.gunzipped {
		return "transcoded"
	}
	return "offset"
}
