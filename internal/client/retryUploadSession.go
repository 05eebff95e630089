package client

import (
	"context"
	"sync"

	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/metrics"
	"github.com/the127/resumable/internal/retry"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/pointer"
)

type uploadState int

const (
	stateUploading uploadState = iota
	stateResetting
)

func (s uploadState) String() string {
	if s == stateResetting {
		return "reset"
	}
	return "upload"
}

type uploadFunc func(ctx context.Context, buffers storage.ConstBufferSequence) (storage.ResumableUploadResponse, error)

// RetryResumableUploadSession retries the operations of a raw session. After
// any failed upload it queries the committed size before sending more data,
// and it only resends the bytes the service has not stored yet.
type RetryResumableUploadSession struct {
	session       storage.ResumableUploadSession
	retryPolicy   retry.Policy
	backoffPolicy retry.BackoffPolicy

	mu            sync.Mutex
	committedSize uint64
	lastResponse  storage.ResumableUploadResponse
	lastErr       error
	broken        error

	journal journal
}

var _ storage.ResumableUploadSession = (*RetryResumableUploadSession)(nil)

func NewRetryResumableUploadSession(session storage.ResumableUploadSession, retryPolicy retry.Policy, backoffPolicy retry.BackoffPolicy) *RetryResumableUploadSession {
	return &RetryResumableUploadSession{
		session:       session,
		retryPolicy:   retryPolicy,
		backoffPolicy: backoffPolicy,
		committedSize: session.NextExpectedByte(),
	}
}

func (r *RetryResumableUploadSession) UploadChunk(ctx context.Context, buffers storage.ConstBufferSequence) (storage.ResumableUploadResponse, error) {
	return r.uploadGenericChunk(ctx, "UploadChunk", buffers, false, r.session.UploadChunk)
}

func (r *RetryResumableUploadSession) UploadFinalChunk(ctx context.Context, buffers storage.ConstBufferSequence, uploadSize uint64, hashes storage.HashValues) (storage.ResumableUploadResponse, error) {
	return r.uploadGenericChunk(ctx, "UploadFinalChunk", buffers, true, func(ctx context.Context, buffers storage.ConstBufferSequence) (storage.ResumableUploadResponse, error) {
		return r.session.UploadFinalChunk(ctx, buffers, uploadSize, hashes)
	})
}

func (r *RetryResumableUploadSession) ResetSession(ctx context.Context) (storage.ResumableUploadResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.broken != nil {
		return storage.ResumableUploadResponse{}, r.broken
	}

	retryPolicy := r.retryPolicy.Clone()
	backoffPolicy := r.backoffPolicy.Clone()

	var lastErr error
	for !retryPolicy.IsExhausted() {
		r.journal.record("reset", "committed=%d", r.committedSize)
		metrics.SessionResets.Inc()

		response, err := r.session.ResetSession(ctx)
		if err != nil {
			lastErr = err
			r.journal.record("reset-error", "%v", err)
			if !retryPolicy.OnFailure(err) {
				return r.fail(terminalError("ResetSession", retryPolicy, err))
			}

			if err := r.backoff(ctx, backoffPolicy, "ResetSession", err); err != nil {
				return r.fail(err)
			}
			continue
		}

		return r.accept(response, true)
	}

	return r.fail(exhaustedError("ResetSession", lastErr))
}

func (r *RetryResumableUploadSession) NextExpectedByte() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.committedSize
}

func (r *RetryResumableUploadSession) SessionID() string {
	return r.session.SessionID()
}

func (r *RetryResumableUploadSession) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastErr == nil && r.lastResponse.UploadState == storage.UploadDone
}

// LastResponse returns the outcome of the most recent operation.
func (r *RetryResumableUploadSession) LastResponse() (storage.ResumableUploadResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastResponse, r.lastErr
}

func (r *RetryResumableUploadSession) uploadGenericChunk(ctx context.Context, caller string, buffers storage.ConstBufferSequence, final bool, upload uploadFunc) (storage.ResumableUploadResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.broken != nil {
		return storage.ResumableUploadResponse{}, r.broken
	}

	retryPolicy := r.retryPolicy.Clone()
	backoffPolicy := r.backoffPolicy.Clone()

	state := stateUploading
	var lastErr error
	for !retryPolicy.IsExhausted() {
		var response storage.ResumableUploadResponse
		var err error

		switch state {
		case stateUploading:
			r.journal.record(caller, "offset=%d size=%d", r.committedSize, buffers.TotalBytes())
			response, err = upload(ctx, buffers)

		case stateResetting:
			r.journal.record("reset", "committed=%d", r.committedSize)
			metrics.SessionResets.Inc()
			response, err = r.session.ResetSession(ctx)
		}

		if err != nil {
			lastErr = err
			metrics.UploadAttempts.WithLabelValues(caller, "error").Inc()
			r.journal.record(state.String()+"-error", "%v", err)
			if !retryPolicy.OnFailure(err) {
				return r.fail(terminalError(caller, retryPolicy, err))
			}

			if err := r.backoff(ctx, backoffPolicy, caller, err); err != nil {
				return r.fail(err)
			}
			state = stateResetting
			continue
		}

		metrics.UploadAttempts.WithLabelValues(caller, "ok").Inc()

		if response.UploadState == storage.UploadDone {
			return r.accept(response, state == stateResetting)
		}

		if response.CommittedSize == nil && state == stateUploading {
			r.journal.record("missing-range", "switching to reset")
			state = stateResetting
			continue
		}

		before := r.committedSize
		response, err = r.accept(response, state == stateResetting)
		if err != nil {
			return response, err
		}

		written := r.committedSize - before
		if written >= buffers.TotalBytes() {
			if final && state == stateResetting {
				// Everything is stored but the upload was never finalized.
				buffers = nil
				state = stateUploading
				continue
			}
			return response, nil
		}

		buffers = buffers.PopFrontBytes(written)
		state = stateUploading
	}

	return r.fail(exhaustedError(caller, lastErr))
}

// accept validates a successful response against the committed size and
// records it. Reset responses without a committed size mean nothing is stored.
func (r *RetryResumableUploadSession) accept(response storage.ResumableUploadResponse, fromReset bool) (storage.ResumableUploadResponse, error) {
	if response.UploadState == storage.UploadDone {
		if response.CommittedSize != nil && *response.CommittedSize > r.committedSize {
			r.committedSize = *response.CommittedSize
		} else if response.Payload != nil && response.Payload.Size > r.committedSize {
			r.committedSize = response.Payload.Size
		}
		r.journal.record("done", "committed=%d", r.committedSize)
		r.lastResponse, r.lastErr = response, nil
		return response, nil
	}

	if response.CommittedSize == nil && fromReset {
		response.CommittedSize = pointer.To(uint64(0))
	}

	reported := pointer.DerefOrZero(response.CommittedSize)
	if reported < r.committedSize {
		r.journal.record("regression", "committed=%d reported=%d", r.committedSize, reported)
		r.broken = committedSizeRegressionError(r.session.SessionID(), r.committedSize, reported, r.journal.dump())
		return r.fail(r.broken)
	}

	r.committedSize = reported
	r.lastResponse, r.lastErr = response, nil
	return response, nil
}

func (r *RetryResumableUploadSession) backoff(ctx context.Context, backoffPolicy retry.BackoffPolicy, caller string, cause error) error {
	delay := backoffPolicy.OnCompletion()
	logging.Logger.Warnf("%s failed for session %s, retrying in %s: %v", caller, r.session.SessionID(), delay, cause)
	return retry.Sleep(ctx, delay)
}

func (r *RetryResumableUploadSession) fail(err error) (storage.ResumableUploadResponse, error) {
	r.lastResponse, r.lastErr = storage.ResumableUploadResponse{}, err
	return storage.ResumableUploadResponse{}, err
}
