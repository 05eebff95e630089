package parallel

import (
	"context"

	"github.com/the127/resumable/internal/client"
	"github.com/the127/resumable/internal/storage"
)

// StorageClient is what parallel uploads need from client.Client.
type StorageClient interface {
	CreateResumableUpload(ctx context.Context, request storage.ResumableUploadRequest) (*client.RetryResumableUploadSession, error)
	RestoreResumableUpload(ctx context.Context, sessionID string) (*client.RetryResumableUploadSession, error)
	DeleteResumableUpload(ctx context.Context, sessionID string) error
	NewObjectWriteStream(ctx context.Context, session *client.RetryResumableUploadSession) *client.ObjectWriteStream
	ReadObject(ctx context.Context, request storage.ReadObjectRangeRequest) (*client.ObjectReadStream, error)
	InsertObjectMedia(ctx context.Context, request storage.InsertObjectMediaRequest) (*storage.ObjectMetadata, error)
	GetObjectMetadata(ctx context.Context, request storage.GetObjectMetadataRequest) (*storage.ObjectMetadata, error)
	ComposeObject(ctx context.Context, request storage.ComposeObjectRequest) (*storage.ObjectMetadata, error)
	DeleteObject(ctx context.Context, request storage.DeleteObjectRequest) error
}

var _ StorageClient = (*client.Client)(nil)
