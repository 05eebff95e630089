package uploads

import (
	"context"
	"crypto/md5"
	"encoding"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/the127/resumable/internal/jsontypes"
	"github.com/the127/resumable/internal/services/kv"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/storageBackends"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type StartSessionParams struct {
	Bucket            string
	Object            string
	ContentType       string
	ContentEncoding   string
	Metadata          map[string]string
	IfGenerationMatch *int64
	ExpectedSize      *int64
	Instructions      []string
}

// Service keeps the state of resumable upload sessions in the kv store and
// their bytes in the storage backend.
type Service interface {
	StartSession(ctx context.Context, params StartSessionParams) (*jsontypes.UploadSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*jsontypes.UploadSession, error)
	SaveSession(ctx context.Context, session *jsontypes.UploadSession) error
	CancelSession(ctx context.Context, session *jsontypes.UploadSession) error

	// WriteChunk appends the bytes of a chunk starting at offset. Bytes the
	// session already has are skipped. At most limit bytes are stored when
	// limit is not negative.
	WriteChunk(ctx context.Context, session *jsontypes.UploadSession, offset int64, reader io.Reader, limit int64) error
	Hashes(session *jsontypes.UploadSession) (storage.HashValues, error)

	// StageBlob stores the whole reader as an unfinished upload.
	StageBlob(ctx context.Context, reader io.Reader, contentType string) (*StagedBlob, error)
	// CompleteBlob moves the bytes of an unfinished upload to key.
	CompleteBlob(ctx context.Context, state storageBackends.StorageBackendState, key string) error
	AbortBlob(ctx context.Context, state storageBackends.StorageBackendState) error
}

type StagedBlob struct {
	BackendState storageBackends.StorageBackendState
	Size         int64
	Hashes       storage.HashValues
}

func buildSessionCacheKey(sessionId uuid.UUID) string {
	return fmt.Sprintf("upload_session:%s", sessionId)
}

type service struct {
	backend    storageBackends.StorageBackend
	kvStore    kv.Store
	expiration time.Duration
}

func NewService(backend storageBackends.StorageBackend, kvStore kv.Store, expiration time.Duration) Service {
	return &service{
		backend:    backend,
		kvStore:    kvStore,
		expiration: expiration,
	}
}

func marshalState(h hash.Hash) ([]byte, error) {
	return h.(encoding.BinaryMarshaler).MarshalBinary()
}

func unmarshalState(h hash.Hash, state []byte) error {
	return h.(encoding.BinaryUnmarshaler).UnmarshalBinary(state)
}

func (s *service) StartSession(ctx context.Context, params StartSessionParams) (*jsontypes.UploadSession, error) {
	crc32cState, err := marshalState(crc32.New(castagnoli))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal crc32c state: %w", err)
	}

	md5State, err := marshalState(md5.New())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal md5 state: %w", err)
	}

	id := uuid.New()
	backendState, err := s.backend.InitiateUpload(ctx, id, params.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate upload: %w", err)
	}

	session := &jsontypes.UploadSession{
		Id:                id,
		Bucket:            params.Bucket,
		Object:            params.Object,
		ContentType:       params.ContentType,
		ContentEncoding:   params.ContentEncoding,
		Metadata:          params.Metadata,
		IfGenerationMatch: params.IfGenerationMatch,
		ExpectedSize:      params.ExpectedSize,
		Crc32cState:       crc32cState,
		Md5State:          md5State,
		BackendState:      backendState,
		Instructions:      params.Instructions,
		FiredFaults:       make(map[string]bool),
	}

	err = s.SaveSession(ctx, session)
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (s *service) GetSession(ctx context.Context, id uuid.UUID) (*jsontypes.UploadSession, error) {
	value, ok, err := s.kvStore.Get(ctx, buildSessionCacheKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !ok {
		return nil, storageError.NewStorageError(codes.NotFound).WithMessagef("upload session %s not found", id)
	}

	var session jsontypes.UploadSession
	err = json.Unmarshal([]byte(value), &session)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if session.FiredFaults == nil {
		session.FiredFaults = make(map[string]bool)
	}

	return &session, nil
}

func (s *service) SaveSession(ctx context.Context, session *jsontypes.UploadSession) error {
	jsonBytes, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = s.kvStore.Set(ctx, buildSessionCacheKey(session.Id), string(jsonBytes), kv.WithExpiration(s.expiration))
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (s *service) CancelSession(ctx context.Context, session *jsontypes.UploadSession) error {
	if !session.IsFinalized() {
		err := s.backend.AbortUpload(ctx, session.BackendState)
		if err != nil {
			return fmt.Errorf("failed to abort upload: %w", err)
		}
	}

	err := s.kvStore.Delete(ctx, buildSessionCacheKey(session.Id))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

type countReader struct {
	io.Reader
	count int64
}

func (r *countReader) Read(p []byte) (n int, err error) {
	n, err = r.Reader.Read(p)
	r.count += int64(n)
	return
}

func (s *service) WriteChunk(ctx context.Context, session *jsontypes.UploadSession, offset int64, reader io.Reader, limit int64) error {
	if offset > session.RangeEnd {
		return storageError.NewStorageError(codes.InvalidArgument).WithMessagef(
			"Invalid request. According to the Content-Range header, the upload offset is %d byte(s), which exceeds already uploaded size of %d byte(s).",
			offset, session.RangeEnd)
	}

	if offset < session.RangeEnd {
		_, err := io.CopyN(io.Discard, reader, session.RangeEnd-offset)
		if err != nil && err != io.EOF {
			return fmt.Errorf("skipping committed bytes: %w", err)
		}
	}

	if limit >= 0 {
		reader = io.LimitReader(reader, limit)
	}

	crc32cHash := crc32.New(castagnoli)
	err := unmarshalState(crc32cHash, session.Crc32cState)
	if err != nil {
		return fmt.Errorf("failed to unmarshal crc32c state: %w", err)
	}

	md5Hash := md5.New()
	err = unmarshalState(md5Hash, session.Md5State)
	if err != nil {
		return fmt.Errorf("failed to unmarshal md5 state: %w", err)
	}

	counted := &countReader{Reader: io.TeeReader(reader, io.MultiWriter(crc32cHash, md5Hash))}
	newBackendState, err := s.backend.UploadAddChunk(ctx, session.BackendState, counted)
	if err != nil {
		return err
	}

	session.Crc32cState, err = marshalState(crc32cHash)
	if err != nil {
		return fmt.Errorf("failed to marshal crc32c state: %w", err)
	}

	session.Md5State, err = marshalState(md5Hash)
	if err != nil {
		return fmt.Errorf("failed to marshal md5 state: %w", err)
	}

	session.BackendState = newBackendState
	session.RangeEnd += counted.count

	return s.SaveSession(ctx, session)
}

func (s *service) StageBlob(ctx context.Context, reader io.Reader, contentType string) (*StagedBlob, error) {
	state, err := s.backend.InitiateUpload(ctx, uuid.New(), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate upload: %w", err)
	}

	crc32cHash := crc32.New(castagnoli)
	md5Hash := md5.New()

	counted := &countReader{Reader: io.TeeReader(reader, io.MultiWriter(crc32cHash, md5Hash))}
	state, err = s.backend.UploadAddChunk(ctx, state, counted)
	if err != nil {
		return nil, err
	}

	return &StagedBlob{
		BackendState: state,
		Size:         counted.count,
		Hashes: storage.HashValues{
			Crc32c: EncodeCrc32c(crc32cHash.Sum32()),
			Md5:    base64.StdEncoding.EncodeToString(md5Hash.Sum(nil)),
		},
	}, nil
}

func (s *service) CompleteBlob(ctx context.Context, state storageBackends.StorageBackendState, key string) error {
	err := s.backend.CompleteUpload(ctx, key, state)
	if err != nil {
		return fmt.Errorf("failed to complete upload: %w", err)
	}

	return nil
}

func (s *service) AbortBlob(ctx context.Context, state storageBackends.StorageBackendState) error {
	err := s.backend.AbortUpload(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to abort upload: %w", err)
	}

	return nil
}

func (s *service) Hashes(session *jsontypes.UploadSession) (storage.HashValues, error) {
	crc32cHash := crc32.New(castagnoli)
	err := unmarshalState(crc32cHash, session.Crc32cState)
	if err != nil {
		return storage.HashValues{}, fmt.Errorf("failed to unmarshal crc32c state: %w", err)
	}

	md5Hash := md5.New()
	err = unmarshalState(md5Hash, session.Md5State)
	if err != nil {
		return storage.HashValues{}, fmt.Errorf("failed to unmarshal md5 state: %w", err)
	}

	return storage.HashValues{
		Crc32c: EncodeCrc32c(crc32cHash.Sum32()),
		Md5:    base64.StdEncoding.EncodeToString(md5Hash.Sum(nil)),
	}, nil
}

// HashData computes the hashes of a complete object.
func HashData(data []byte) storage.HashValues {
	sum := md5.Sum(data)
	return storage.HashValues{
		Crc32c: EncodeCrc32c(crc32.Checksum(data, castagnoli)),
		Md5:    base64.StdEncoding.EncodeToString(sum[:]),
	}
}

func EncodeCrc32c(sum uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], sum)
	return base64.StdEncoding.EncodeToString(buf[:])
}
