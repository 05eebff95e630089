// Package mocks holds testify mocks of the storage interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/the127/resumable/internal/storage"
)

type ResumableUploadSession struct {
	mock.Mock
}

var _ storage.ResumableUploadSession = (*ResumableUploadSession)(nil)

func (m *ResumableUploadSession) UploadChunk(ctx context.Context, buffers storage.ConstBufferSequence) (storage.ResumableUploadResponse, error) {
	args := m.Called(ctx, buffers.Bytes())
	return args.Get(0).(storage.ResumableUploadResponse), args.Error(1)
}

func (m *ResumableUploadSession) UploadFinalChunk(ctx context.Context, buffers storage.ConstBufferSequence, uploadSize uint64, hashes storage.HashValues) (storage.ResumableUploadResponse, error) {
	args := m.Called(ctx, buffers.Bytes(), uploadSize, hashes)
	return args.Get(0).(storage.ResumableUploadResponse), args.Error(1)
}

func (m *ResumableUploadSession) ResetSession(ctx context.Context) (storage.ResumableUploadResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(storage.ResumableUploadResponse), args.Error(1)
}

func (m *ResumableUploadSession) NextExpectedByte() uint64 {
	return m.Called().Get(0).(uint64)
}

func (m *ResumableUploadSession) SessionID() string {
	return m.Called().String(0)
}

func (m *ResumableUploadSession) Done() bool {
	return m.Called().Bool(0)
}

type ObjectReadSource struct {
	mock.Mock
}

var _ storage.ObjectReadSource = (*ObjectReadSource)(nil)

// Read copies the bytes of the third return value into buf.
func (m *ObjectReadSource) Read(ctx context.Context, buf []byte) (storage.ReadSourceResult, error) {
	args := m.Called(ctx, len(buf))
	result := args.Get(0).(storage.ReadSourceResult)
	if data, ok := args.Get(2).([]byte); ok {
		result.BytesReceived = copy(buf, data)
	}
	return result, args.Error(1)
}

func (m *ObjectReadSource) IsOpen() bool {
	return m.Called().Bool(0)
}

func (m *ObjectReadSource) Close() (storage.HttpResponse, error) {
	args := m.Called()
	return args.Get(0).(storage.HttpResponse), args.Error(1)
}

type RawClient struct {
	mock.Mock
}

var _ storage.RawClient = (*RawClient)(nil)

func (m *RawClient) CreateResumableUpload(ctx context.Context, request storage.ResumableUploadRequest) (storage.ResumableUploadSession, error) {
	args := m.Called(ctx, request)
	session, _ := args.Get(0).(storage.ResumableUploadSession)
	return session, args.Error(1)
}

func (m *RawClient) RestoreResumableUpload(ctx context.Context, sessionID string) (storage.ResumableUploadSession, error) {
	args := m.Called(ctx, sessionID)
	session, _ := args.Get(0).(storage.ResumableUploadSession)
	return session, args.Error(1)
}

func (m *RawClient) DeleteResumableUpload(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *RawClient) ReadObject(ctx context.Context, request storage.ReadObjectRangeRequest) (storage.ObjectReadSource, error) {
	args := m.Called(ctx, request)
	source, _ := args.Get(0).(storage.ObjectReadSource)
	return source, args.Error(1)
}

func (m *RawClient) InsertObjectMedia(ctx context.Context, request storage.InsertObjectMediaRequest) (*storage.ObjectMetadata, error) {
	args := m.Called(ctx, request)
	metadata, _ := args.Get(0).(*storage.ObjectMetadata)
	return metadata, args.Error(1)
}

func (m *RawClient) GetObjectMetadata(ctx context.Context, request storage.GetObjectMetadataRequest) (*storage.ObjectMetadata, error) {
	args := m.Called(ctx, request)
	metadata, _ := args.Get(0).(*storage.ObjectMetadata)
	return metadata, args.Error(1)
}

func (m *RawClient) ComposeObject(ctx context.Context, request storage.ComposeObjectRequest) (*storage.ObjectMetadata, error) {
	args := m.Called(ctx, request)
	metadata, _ := args.Get(0).(*storage.ObjectMetadata)
	return metadata, args.Error(1)
}

func (m *RawClient) DeleteObject(ctx context.Context, request storage.DeleteObjectRequest) error {
	return m.Called(ctx, request).Error(0)
}
