package storageBackends

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

// StorageBackendState is the opaque state of an unfinished upload. It is
// persisted with the upload session between requests.
type StorageBackendState map[string]string

// StorageBackend stores object contents. Finished uploads are addressed by a
// key chosen by the caller, temporary uploads only through their state.
type StorageBackend interface {
	InitiateUpload(ctx context.Context, id uuid.UUID, contentType string) (StorageBackendState, error)
	UploadAddChunk(ctx context.Context, state StorageBackendState, reader io.Reader) (StorageBackendState, error)
	CompleteUpload(ctx context.Context, key string, state StorageBackendState) error
	AbortUpload(ctx context.Context, state StorageBackendState) error

	DeleteBlob(ctx context.Context, key string) error
	OpenBlob(ctx context.Context, key string) (io.ReadSeekCloser, error)
}

func ErrBlobNotFound(key string) error {
	return storageError.NewStorageError(codes.NotFound).WithMessagef("blob %s not found", key)
}
