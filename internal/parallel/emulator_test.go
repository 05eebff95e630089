package parallel

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/the127/resumable/internal/client"
	"github.com/the127/resumable/internal/retry"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/testutils"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type EmulatorTestSuite struct {
	suite.Suite
	client *client.Client
	file   string
	data   []byte
}

func TestEmulatorTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(EmulatorTestSuite))
}

func (s *EmulatorTestSuite) SetupTest() {
	emulator := testutils.NewEmulator(s.T())
	s.client = client.NewClient(emulator.RawClient(nil), client.Options{
		RetryPolicy:   retry.NewLimitedErrorCountPolicy(3),
		BackoffPolicy: retry.NewExponentialBackoffPolicy(time.Microsecond, time.Millisecond, 2),
		MaxAttempts:   3,
		InitialDelay:  time.Microsecond,
		MaxDelay:      time.Millisecond,
		ChunkSize:     client.UploadQuantum,
	})

	s.data = make([]byte, 4*client.UploadQuantum+100)
	for i := range s.data {
		s.data[i] = byte((i * 31) % 253)
	}

	s.file = filepath.Join(s.T().TempDir(), "upload.bin")
	s.Require().NoError(os.WriteFile(s.file, s.data, 0o600))
}

func (s *EmulatorTestSuite) options() FileOptions {
	return FileOptions{
		Bucket:        "bucket",
		Destination:   "destination",
		FileName:      s.file,
		Prefix:        "tmp/destination",
		MaxStreams:    4,
		MinStreamSize: client.UploadQuantum,
	}
}

func (s *EmulatorTestSuite) download(name string) []byte {
	stream, err := s.client.ReadObject(context.Background(), storage.ReadObjectRangeRequest{Bucket: "bucket", Object: name})
	s.Require().NoError(err)
	defer func() { _ = stream.Close() }()

	data, err := io.ReadAll(stream)
	s.Require().NoError(err)
	return data
}

func (s *EmulatorTestSuite) requireGone(name string) {
	_, err := s.client.GetObjectMetadata(context.Background(), storage.GetObjectMetadataRequest{Bucket: "bucket", Object: name})
	s.Equal(codes.NotFound, status.Code(err), name)
}

func (s *EmulatorTestSuite) TestParallelUploadFile() {
	// arrange
	ctx := context.Background()

	// act
	metadata, err := ParallelUploadFile(ctx, s.client, s.options())

	// assert
	s.Require().NoError(err)
	s.Equal(uint64(len(s.data)), metadata.Size)
	s.Equal(4, metadata.ComponentCount)
	s.Equal(s.data, s.download("destination"))
	s.requireGone("tmp/destination")
	for i := 0; i < 4; i++ {
		s.requireGone(ShardName("tmp/destination", i))
	}
}

func (s *EmulatorTestSuite) TestResumeAfterFailedShard() {
	// arrange
	ctx := context.Background()
	options := s.options()
	options.Resumable = true

	var sessionID string
	options.SessionIDHook = func(id string) {
		sessionID = id
	}
	options.ReaderHook = func(shard int, _ int64, r io.Reader) io.Reader {
		if shard == 1 {
			return iotest.ErrReader(status.Error(codes.Unavailable, "disk went away"))
		}
		return r
	}

	_, err := ParallelUploadFile(ctx, s.client, options)
	s.Require().Error(err)
	s.Require().NotEmpty(sessionID)

	// act
	resume := s.options()
	resume.ResumeSessionID = sessionID
	metadata, err := ParallelUploadFile(ctx, s.client, resume)

	// assert
	s.Require().NoError(err)
	s.Equal(uint64(len(s.data)), metadata.Size)
	s.Equal(s.data, s.download("destination"))
	s.requireGone("tmp/destination")
	s.requireGone("tmp/destination" + stateSuffix)
}

func (s *EmulatorTestSuite) TestResumeWithWrongDestinationFails() {
	// arrange
	ctx := context.Background()
	options := s.options()
	options.Resumable = true

	var sessionID string
	options.SessionIDHook = func(id string) {
		sessionID = id
	}
	options.ReaderHook = func(int, int64, io.Reader) io.Reader {
		return iotest.ErrReader(status.Error(codes.Unavailable, "disk went away"))
	}

	_, err := ParallelUploadFile(ctx, s.client, options)
	s.Require().Error(err)

	// act
	resume := s.options()
	resume.Destination = "elsewhere"
	resume.ResumeSessionID = sessionID
	_, err = ParallelUploadFile(ctx, s.client, resume)

	// assert
	s.Equal(codes.Internal, status.Code(err))
}

// interruptResumable starts a resumable upload that fails with the given
// reader hook and returns its session id.
func (s *EmulatorTestSuite) interruptResumable(hook func(shard int, size int64, r io.Reader) io.Reader) string {
	options := s.options()
	options.Resumable = true
	options.ReaderHook = hook

	var sessionID string
	options.SessionIDHook = func(id string) {
		sessionID = id
	}

	_, err := ParallelUploadFile(context.Background(), s.client, options)
	s.Require().Error(err)
	s.Require().NotEmpty(sessionID)
	return sessionID
}

func failFirstShard(shard int, _ int64, r io.Reader) io.Reader {
	if shard == 0 {
		return iotest.ErrReader(status.Error(codes.Unavailable, "disk went away"))
	}
	return r
}

func (s *EmulatorTestSuite) TestResumeWithGrownFileFails() {
	// arrange
	sessionID := s.interruptResumable(failFirstShard)

	file, err := os.OpenFile(s.file, os.O_APPEND|os.O_WRONLY, 0o600)
	s.Require().NoError(err)
	_, err = file.Write([]byte("0123456789"))
	s.Require().NoError(err)
	s.Require().NoError(file.Close())

	// act
	resume := s.options()
	resume.ResumeSessionID = sessionID
	_, err = ParallelUploadFile(context.Background(), s.client, resume)

	// assert
	s.Equal(codes.Internal, status.Code(err))
	s.Contains(err.Error(), "Corrupted upload state")
	s.Contains(err.Error(), "shard 3 was finalized")
}

func (s *EmulatorTestSuite) TestResumeWithTruncatedShardFails() {
	// arrange
	sessionID := s.interruptResumable(func(shard int, size int64, r io.Reader) io.Reader {
		if shard == 3 {
			return io.MultiReader(
				io.LimitReader(r, client.UploadQuantum),
				iotest.ErrReader(status.Error(codes.Unavailable, "disk went away")))
		}
		return failFirstShard(shard, size, r)
	})
	s.Require().NoError(os.Truncate(s.file, int64(len(s.data)-100)))

	// act
	resume := s.options()
	resume.ResumeSessionID = sessionID
	_, err := ParallelUploadFile(context.Background(), s.client, resume)

	// assert
	s.Equal(codes.Internal, status.Code(err))
	s.Contains(err.Error(), "Corrupted upload state")
	s.Contains(err.Error(), "shard 3 has 262144 bytes stored")
}

func (s *EmulatorTestSuite) TestResumeWithShrunkFileFails() {
	// arrange
	sessionID := s.interruptResumable(failFirstShard)
	s.Require().NoError(os.Truncate(s.file, 2*client.UploadQuantum))

	// act
	resume := s.options()
	resume.ResumeSessionID = sessionID
	_, err := ParallelUploadFile(context.Background(), s.client, resume)

	// assert
	s.Equal(codes.Internal, status.Code(err))
	s.Contains(err.Error(), "Corrupted upload state")
}

func (s *EmulatorTestSuite) TestCloseWhileShardIsWriting() {
	// arrange
	ctx := context.Background()
	state, err := PrepareParallelUpload(ctx, s.client, Options{
		Bucket:      "bucket",
		Destination: "destination",
		NumShards:   2,
		Prefix:      "tmp/concurrent",
	})
	s.Require().NoError(err)

	shard := state.Shards()[0]
	started := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() {
		chunk := make([]byte, 1024)
		for i := 0; ; i++ {
			_, err := shard.Write(chunk)
			if i == 0 {
				close(started)
			}
			if err != nil {
				writeErr <- err
				return
			}
		}
	}()
	<-started

	// act
	err = state.Close()
	stopped := <-writeErr
	_, result := state.WaitForCompletion(ctx)

	// assert
	s.NoError(err)
	s.Error(stopped)
	s.Equal(codes.Canceled, status.Code(result))
	s.True(shard.Finished())
	s.requireGone("tmp/concurrent")
	s.requireGone(ShardName("tmp/concurrent", 0))
	s.requireGone(ShardName("tmp/concurrent", 1))
}
