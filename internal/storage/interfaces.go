package storage

import "context"

// ResumableUploadSession is a single resumable upload without any retry
// behavior. Implementations are not safe for concurrent use.
type ResumableUploadSession interface {
	UploadChunk(ctx context.Context, buffers ConstBufferSequence) (ResumableUploadResponse, error)
	UploadFinalChunk(ctx context.Context, buffers ConstBufferSequence, uploadSize uint64, hashes HashValues) (ResumableUploadResponse, error)
	// ResetSession queries the service for the committed size of the upload.
	ResetSession(ctx context.Context) (ResumableUploadResponse, error)
	NextExpectedByte() uint64
	SessionID() string
	Done() bool
}

// ObjectReadSource is a single download stream without any retry behavior.
type ObjectReadSource interface {
	Read(ctx context.Context, buf []byte) (ReadSourceResult, error)
	IsOpen() bool
	Close() (HttpResponse, error)
}

// RawClient is the subset of the storage service used by the upload and
// download machinery. Calls are issued exactly once.
type RawClient interface {
	CreateResumableUpload(ctx context.Context, request ResumableUploadRequest) (ResumableUploadSession, error)
	RestoreResumableUpload(ctx context.Context, sessionID string) (ResumableUploadSession, error)
	DeleteResumableUpload(ctx context.Context, sessionID string) error
	ReadObject(ctx context.Context, request ReadObjectRangeRequest) (ObjectReadSource, error)
	InsertObjectMedia(ctx context.Context, request InsertObjectMediaRequest) (*ObjectMetadata, error)
	GetObjectMetadata(ctx context.Context, request GetObjectMetadataRequest) (*ObjectMetadata, error)
	ComposeObject(ctx context.Context, request ComposeObjectRequest) (*ObjectMetadata, error)
	DeleteObject(ctx context.Context, request DeleteObjectRequest) error
}
