package uploads

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/the127/resumable/internal/services/kv"
	"github.com/the127/resumable/internal/storageBackends"
	"github.com/the127/resumable/internal/storageBackends/inmemory"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type UploadServiceTestSuite struct {
	suite.Suite
	backend storageBackends.StorageBackend
	service Service
}

func TestUploadServiceTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(UploadServiceTestSuite))
}

func (s *UploadServiceTestSuite) SetupTest() {
	s.backend = inmemory.New()
	s.service = NewService(s.backend, kv.NewMemoryStore(), time.Hour)
}

func (s *UploadServiceTestSuite) TestChunksAreAppendedAndHashed() {
	// arrange
	ctx := context.Background()
	session, err := s.service.StartSession(ctx, StartSessionParams{Bucket: "b", Object: "o"})
	s.Require().NoError(err)

	// act
	s.Require().NoError(s.service.WriteChunk(ctx, session, 0, strings.NewReader("hello "), -1))
	s.Require().NoError(s.service.WriteChunk(ctx, session, 6, strings.NewReader("world"), -1))
	hashes, err := s.service.Hashes(session)
	s.Require().NoError(err)
	s.Require().NoError(s.service.CompleteBlob(ctx, session.BackendState, "key"))

	// assert
	s.Equal(int64(11), session.RangeEnd)
	s.Equal(HashData([]byte("hello world")), hashes)
	blob, err := s.backend.OpenBlob(ctx, "key")
	s.Require().NoError(err)
	data, _ := io.ReadAll(blob)
	s.Equal("hello world", string(data))
}

func (s *UploadServiceTestSuite) TestStateSurvivesReload() {
	// arrange
	ctx := context.Background()
	session, err := s.service.StartSession(ctx, StartSessionParams{Bucket: "b", Object: "o"})
	s.Require().NoError(err)
	s.Require().NoError(s.service.WriteChunk(ctx, session, 0, strings.NewReader("abc"), -1))

	// act
	reloaded, err := s.service.GetSession(ctx, session.Id)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(3), reloaded.RangeEnd)
	s.Equal("o", reloaded.Object)
}

func (s *UploadServiceTestSuite) TestResentBytesAreSkipped() {
	// arrange
	ctx := context.Background()
	session, err := s.service.StartSession(ctx, StartSessionParams{})
	s.Require().NoError(err)
	s.Require().NoError(s.service.WriteChunk(ctx, session, 0, strings.NewReader("abcd"), -1))

	// act
	err = s.service.WriteChunk(ctx, session, 2, strings.NewReader("cdef"), -1)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(6), session.RangeEnd)
	hashes, _ := s.service.Hashes(session)
	s.Equal(HashData([]byte("abcdef")), hashes)
}

func (s *UploadServiceTestSuite) TestGapIsRejected() {
	// arrange
	ctx := context.Background()
	session, err := s.service.StartSession(ctx, StartSessionParams{})
	s.Require().NoError(err)

	// act
	err = s.service.WriteChunk(ctx, session, 5, strings.NewReader("x"), -1)

	// assert
	s.Equal(codes.InvalidArgument, status.Code(err))
	s.Equal(int64(0), session.RangeEnd)
}

func (s *UploadServiceTestSuite) TestLimitTruncatesChunk() {
	// arrange
	ctx := context.Background()
	session, err := s.service.StartSession(ctx, StartSessionParams{})
	s.Require().NoError(err)

	// act
	err = s.service.WriteChunk(ctx, session, 0, strings.NewReader("abcdef"), 2)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(2), session.RangeEnd)
}

func (s *UploadServiceTestSuite) TestCancelledSessionIsGone() {
	// arrange
	ctx := context.Background()
	session, err := s.service.StartSession(ctx, StartSessionParams{})
	s.Require().NoError(err)

	// act
	err = s.service.CancelSession(ctx, session)
	_, getErr := s.service.GetSession(ctx, session.Id)

	// assert
	s.NoError(err)
	s.True(storageError.IsNotFound(getErr))
}

func (s *UploadServiceTestSuite) TestStagedBlobIsHashedAndCompleted() {
	// arrange
	ctx := context.Background()

	// act
	staged, err := s.service.StageBlob(ctx, strings.NewReader("staged data"), "text/plain")
	s.Require().NoError(err)
	err = s.service.CompleteBlob(ctx, staged.BackendState, "staged-key")

	// assert
	s.Require().NoError(err)
	s.Equal(int64(11), staged.Size)
	s.Equal(HashData([]byte("staged data")), staged.Hashes)
	blob, err := s.backend.OpenBlob(ctx, "staged-key")
	s.Require().NoError(err)
	data, _ := io.ReadAll(blob)
	s.Equal("staged data", string(data))
}

func (s *UploadServiceTestSuite) TestAbortedBlobIsNotStored() {
	// arrange
	ctx := context.Background()
	staged, err := s.service.StageBlob(ctx, strings.NewReader("x"), "")
	s.Require().NoError(err)

	// act
	err = s.service.AbortBlob(ctx, staged.BackendState)

	// assert
	s.Require().NoError(err)
	s.Error(s.service.CompleteBlob(ctx, staged.BackendState, "k"))
}
