package client

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"hash"
	"hash/crc32"
	"sync"

	"github.com/the127/resumable/internal/storage"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UploadQuantum is the granularity of non-final chunks.
const UploadQuantum = 256 * 1024

// ObjectWriteStream buffers writes into chunks and uploads them through a
// resumable session. Close finalizes the object, Suspend leaves the session
// open so it can be restored later. Suspend may be called from another
// goroutine while a Write is in flight.
type ObjectWriteStream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	session   *RetryResumableUploadSession
	chunkSize int
	buffer    []byte

	offset      uint64
	crc32c      hash.Hash32
	md5         hash.Hash
	hashesValid bool

	mu        sync.Mutex
	metadata  *storage.ObjectMetadata
	closed    bool
	suspended bool
	err       error
}

func newObjectWriteStream(ctx context.Context, session *RetryResumableUploadSession, chunkSize int) *ObjectWriteStream {
	if chunkSize < UploadQuantum {
		chunkSize = UploadQuantum
	}
	chunkSize = (chunkSize + UploadQuantum - 1) / UploadQuantum * UploadQuantum

	offset := session.NextExpectedByte()
	ctx, cancel := context.WithCancel(ctx)
	w := &ObjectWriteStream{
		ctx:         ctx,
		cancel:      cancel,
		session:     session,
		chunkSize:   chunkSize,
		buffer:      make([]byte, 0, chunkSize),
		offset:      offset,
		crc32c:      crc32.New(castagnoli),
		md5:         md5.New(),
		hashesValid: offset == 0,
		closed:      session.Done(),
	}

	if w.closed {
		response, _ := session.LastResponse()
		w.metadata = response.Payload
	}
	return w
}

func (w *ObjectWriteStream) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return 0, w.err
	}

	if w.closed || w.suspended {
		return 0, status.Error(codes.FailedPrecondition, "write to a closed upload stream")
	}

	written := 0
	for len(p) > 0 {
		n := min(len(p), w.chunkSize-len(w.buffer))
		w.buffer = append(w.buffer, p[:n]...)
		p = p[n:]
		written += n

		if len(w.buffer) == w.chunkSize {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *ObjectWriteStream) flush() error {
	chunk := w.buffer
	response, err := w.session.UploadChunk(w.ctx, storage.NewConstBufferSequence(chunk))
	if err != nil {
		w.err = err
		return err
	}

	w.absorb(chunk)
	if response.UploadState == storage.UploadDone {
		w.metadata = response.Payload
		w.closed = true
	}
	return nil
}

func (w *ObjectWriteStream) absorb(chunk []byte) {
	_, _ = w.crc32c.Write(chunk)
	_, _ = w.md5.Write(chunk)
	w.offset += uint64(len(chunk))
	w.buffer = w.buffer[:0]
}

// Close uploads the buffered bytes as the final chunk.
func (w *ObjectWriteStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}

	if w.closed || w.suspended {
		return nil
	}

	chunk := w.buffer
	total := w.offset + uint64(len(chunk))

	var hashes storage.HashValues
	if w.hashesValid {
		_, _ = w.crc32c.Write(chunk)
		_, _ = w.md5.Write(chunk)
		hashes = storage.HashValues{
			Crc32c: EncodeCrc32c(w.crc32c.Sum32()),
			Md5:    base64.StdEncoding.EncodeToString(w.md5.Sum(nil)),
		}
	}

	response, err := w.session.UploadFinalChunk(w.ctx, storage.NewConstBufferSequence(chunk), total, hashes)
	w.closed = true
	w.cancel()
	if err != nil {
		w.err = err
		return err
	}

	if response.UploadState != storage.UploadDone {
		w.err = status.Errorf(codes.Internal, "upload session %s was not finalized after the last chunk", w.session.SessionID())
		return w.err
	}

	w.offset = total
	w.buffer = nil
	w.metadata = response.Payload
	return nil
}

// Suspend stops the stream without finalizing the upload. Buffered bytes
// that were not uploaded yet are dropped. A chunk upload in flight is
// cancelled, the bytes the service already committed stay in the session.
func (w *ObjectWriteStream) Suspend() {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.suspended = true
	w.buffer = nil
}

func (w *ObjectWriteStream) Metadata() *storage.ObjectMetadata {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.metadata
}

func (w *ObjectWriteStream) SessionID() string {
	return w.session.SessionID()
}

func (w *ObjectWriteStream) NextExpectedByte() uint64 {
	return w.session.NextExpectedByte()
}

func (w *ObjectWriteStream) IsSuspended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.suspended
}

func (w *ObjectWriteStream) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.err
}
