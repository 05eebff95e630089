package parallel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/the127/resumable/internal/client"
	"github.com/the127/resumable/internal/retry"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/storage/mocks"
	"github.com/the127/resumable/internal/utils/pointer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	testBucket      = "bucket"
	testDestination = "final-object"
	testPrefix      = "final-object.prefix"
)

type ParallelUploadStateTestSuite struct {
	suite.Suite
	raw    *mocks.RawClient
	client *client.Client

	mu    sync.Mutex
	calls []string
}

func TestParallelUploadStateTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ParallelUploadStateTestSuite))
}

func (s *ParallelUploadStateTestSuite) SetupTest() {
	s.raw = &mocks.RawClient{}
	s.client = client.NewClient(s.raw, client.Options{
		RetryPolicy:   retry.NewLimitedErrorCountPolicy(2),
		BackoffPolicy: retry.NewExponentialBackoffPolicy(time.Microsecond, time.Microsecond, 1),
		MaxAttempts:   1,
		ChunkSize:     client.UploadQuantum,
	})
	s.calls = nil
}

func (s *ParallelUploadStateTestSuite) record(call string) func(mock.Arguments) {
	return func(mock.Arguments) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.calls = append(s.calls, call)
	}
}

func (s *ParallelUploadStateTestSuite) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *ParallelUploadStateTestSuite) expectMarker() {
	s.raw.On("InsertObjectMedia", mock.Anything, storage.InsertObjectMediaRequest{
		Bucket:            testBucket,
		Object:            testPrefix,
		IfGenerationMatch: pointer.To(int64(0)),
	}).Return(&storage.ObjectMetadata{Bucket: testBucket, Name: testPrefix, Generation: 1}, nil).Once().Run(s.record("insert"))
}

// expectShards makes shard i accept "shard-<i>" as its only, final chunk.
func (s *ParallelUploadStateTestSuite) expectShards(n int) {
	for i := 0; i < n; i++ {
		name := ShardName(testPrefix, i)
		data := []byte(fmt.Sprintf("shard-%d", i))

		session := &mocks.ResumableUploadSession{}
		session.On("NextExpectedByte").Return(uint64(0))
		session.On("SessionID").Return(fmt.Sprintf("session-%d", i)).Maybe()
		session.On("UploadFinalChunk", mock.Anything, data, uint64(len(data)), mock.Anything).Return(storage.ResumableUploadResponse{
			UploadState: storage.UploadDone,
			Payload:     &storage.ObjectMetadata{Bucket: testBucket, Name: name, Generation: int64(100 + i), Size: uint64(len(data))},
		}, nil).Maybe()

		s.raw.On("CreateResumableUpload", mock.Anything, mock.MatchedBy(func(r storage.ResumableUploadRequest) bool {
			return r.Object == name
		})).Return(session, nil).Once().Run(s.record("create"))
	}
}

func (s *ParallelUploadStateTestSuite) expectDeletes() {
	s.raw.On("DeleteObject", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		request := args.Get(1).(storage.DeleteObjectRequest)
		s.record("delete " + request.Object)(args)
	})
}

func (s *ParallelUploadStateTestSuite) uploadAll(state *ParallelUploadState) {
	for i, shard := range state.Shards() {
		_, err := shard.Write([]byte(fmt.Sprintf("shard-%d", i)))
		s.Require().NoError(err)
		s.Require().NoError(shard.Close())
	}
}

func (s *ParallelUploadStateTestSuite) deletes() []string {
	var result []string
	for _, call := range s.recorded() {
		if len(call) > 7 && call[:7] == "delete " {
			result = append(result, call[7:])
		}
	}
	return result
}

func (s *ParallelUploadStateTestSuite) TestThreeShardsComposeAndCleanUp() {
	// arrange
	s.expectMarker()
	s.expectShards(3)
	s.expectDeletes()
	s.raw.On("ComposeObject", mock.Anything, storage.ComposeObjectRequest{
		Bucket:      testBucket,
		Destination: testDestination,
		SourceObjects: []storage.ComposeSourceObject{
			{Name: ShardName(testPrefix, 0), Generation: pointer.To(int64(100))},
			{Name: ShardName(testPrefix, 1), Generation: pointer.To(int64(101))},
			{Name: ShardName(testPrefix, 2), Generation: pointer.To(int64(102))},
		},
	}).Return(&storage.ObjectMetadata{Bucket: testBucket, Name: testDestination, Generation: 999}, nil).Once().Run(s.record("compose"))

	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   3,
		Prefix:      testPrefix,
	})
	s.Require().NoError(err)

	// act
	s.uploadAll(state)
	metadata, err := state.WaitForCompletion(context.Background())
	cleanupErr := state.EagerCleanup(context.Background())

	// assert
	s.Require().NoError(err)
	s.Require().NoError(cleanupErr)
	s.Equal(int64(999), metadata.Generation)
	s.Equal("", state.SessionID())

	calls := s.recorded()
	s.Equal([]string{"insert", "create", "create", "create", "compose"}, calls[:5])
	deletes := s.deletes()
	s.Len(deletes, 4)
	s.ElementsMatch([]string{ShardName(testPrefix, 0), ShardName(testPrefix, 1), ShardName(testPrefix, 2), testPrefix}, deletes)
	s.Equal(testPrefix, deletes[3])
}

func (s *ParallelUploadStateTestSuite) TestSixtyThreeShardsUseComposeTree() {
	// arrange
	const shards = 63
	s.expectMarker()
	s.expectShards(shards)
	s.expectDeletes()

	var composes []storage.ComposeObjectRequest
	for _, destination := range []string{testPrefix + ".compose-tmp-0", testPrefix + ".compose-tmp-1", testDestination} {
		s.raw.On("ComposeObject", mock.Anything, mock.MatchedBy(func(r storage.ComposeObjectRequest) bool {
			return r.Destination == destination
		})).Return(&storage.ObjectMetadata{Bucket: testBucket, Name: destination, Generation: 500}, nil).Once().Run(func(args mock.Arguments) {
			s.mu.Lock()
			defer s.mu.Unlock()
			composes = append(composes, args.Get(1).(storage.ComposeObjectRequest))
		})
	}

	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   shards,
		Prefix:      testPrefix,
	})
	s.Require().NoError(err)

	// act
	s.uploadAll(state)
	_, err = state.WaitForCompletion(context.Background())
	cleanupErr := state.EagerCleanup(context.Background())

	// assert
	s.Require().NoError(err)
	s.Require().NoError(cleanupErr)
	s.Require().Len(composes, 3)
	s.Equal(testPrefix+".compose-tmp-0", composes[0].Destination)
	s.Len(composes[0].SourceObjects, 32)
	s.Equal(testPrefix+".compose-tmp-1", composes[1].Destination)
	s.Len(composes[1].SourceObjects, 31)
	s.Equal(testDestination, composes[2].Destination)
	s.Len(composes[2].SourceObjects, 2)

	deletes := s.deletes()
	s.Len(deletes, shards+3)
	s.Contains(deletes[:2], testPrefix+".compose-tmp-0")
	s.Contains(deletes[:2], testPrefix+".compose-tmp-1")
	s.Equal(testPrefix, deletes[len(deletes)-1])
}

func (s *ParallelUploadStateTestSuite) TestSessionCreationFailureCleansUp() {
	// arrange
	s.expectMarker()
	s.expectShards(2)
	s.raw.On("CreateResumableUpload", mock.Anything, mock.MatchedBy(func(r storage.ResumableUploadRequest) bool {
		return r.Object == ShardName(testPrefix, 2)
	})).Return(nil, status.Error(codes.PermissionDenied, "denied")).Once()
	s.raw.On("DeleteResumableUpload", mock.Anything, "session-0").Return(nil).Once()
	s.raw.On("DeleteResumableUpload", mock.Anything, "session-1").Return(nil).Once()
	s.expectDeletes()

	// act
	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   4,
		Prefix:      testPrefix,
	})

	// assert
	s.Nil(state)
	s.Equal(codes.PermissionDenied, status.Code(err))
	s.Contains(err.Error(), "Permanent error")
	s.Equal([]string{testPrefix}, s.deletes())
	s.raw.AssertExpectations(s.T())
}

func (s *ParallelUploadStateTestSuite) TestEagerCleanupRefusedWhileInProgress() {
	// arrange
	s.expectMarker()
	s.expectShards(2)
	s.expectDeletes()
	s.raw.On("ComposeObject", mock.Anything, mock.Anything).Return(&storage.ObjectMetadata{Name: testDestination, Generation: 1}, nil)

	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   2,
		Prefix:      testPrefix,
	})
	s.Require().NoError(err)

	// act
	early := state.EagerCleanup(context.Background())
	s.uploadAll(state)
	_, _ = state.WaitForCompletion(context.Background())
	first := state.EagerCleanup(context.Background())
	deletesAfterFirst := len(s.deletes())
	second := state.EagerCleanup(context.Background())

	// assert
	s.Equal(codes.FailedPrecondition, status.Code(early))
	s.Contains(early.Error(), "still in progress")
	s.NoError(first)
	s.Equal(first, second)
	s.Equal(deletesAfterFirst, len(s.deletes()))
}

func (s *ParallelUploadStateTestSuite) TestCleanupFailureIsReportedOnce() {
	// arrange
	s.expectMarker()
	s.expectShards(1)
	s.raw.On("DeleteObject", mock.Anything, mock.Anything).Return(status.Error(codes.PermissionDenied, "no delete"))
	s.raw.On("ComposeObject", mock.Anything, mock.Anything).Return(&storage.ObjectMetadata{Name: testDestination, Generation: 1}, nil)

	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   1,
		Prefix:      testPrefix,
	})
	s.Require().NoError(err)
	s.uploadAll(state)

	// act
	metadata, err := state.WaitForCompletion(context.Background())
	first := state.EagerCleanup(context.Background())
	second := state.EagerCleanup(context.Background())

	// assert
	s.NoError(err)
	s.NotNil(metadata)
	s.Equal(codes.PermissionDenied, status.Code(first))
	s.Equal(first, second)
	s.raw.AssertNumberOfCalls(s.T(), "DeleteObject", 2)
}

func (s *ParallelUploadStateTestSuite) TestSuspendedShardCancelsUpload() {
	// arrange
	s.expectMarker()
	s.expectShards(2)
	s.expectDeletes()
	s.raw.On("DeleteResumableUpload", mock.Anything, "session-1").Return(nil).Once()

	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   2,
		Prefix:      testPrefix,
	})
	s.Require().NoError(err)

	// act
	shards := state.Shards()
	_, _ = shards[0].Write([]byte("shard-0"))
	s.Require().NoError(shards[0].Close())
	shards[1].Suspend()
	_, err = state.WaitForCompletion(context.Background())
	cleanupErr := state.EagerCleanup(context.Background())

	// assert
	s.Equal(codes.Canceled, status.Code(err))
	s.NoError(cleanupErr)
	s.ElementsMatch([]string{ShardName(testPrefix, 0), testPrefix}, s.deletes())
	s.raw.AssertNotCalled(s.T(), "ComposeObject", mock.Anything, mock.Anything)
	s.raw.AssertCalled(s.T(), "DeleteResumableUpload", mock.Anything, "session-1")
	s.raw.AssertNumberOfCalls(s.T(), "DeleteResumableUpload", 1)
}

func (s *ParallelUploadStateTestSuite) TestResumableUploadPersistsState() {
	// arrange
	s.raw.On("GetObjectMetadata", mock.Anything, storage.GetObjectMetadataRequest{Bucket: testBucket, Object: testDestination}).
		Return(&storage.ObjectMetadata{Name: testDestination, Generation: 77}, nil).Once()
	s.expectMarker()
	s.expectShards(2)
	s.expectDeletes()

	var persisted []byte
	s.raw.On("InsertObjectMedia", mock.Anything, mock.MatchedBy(func(r storage.InsertObjectMediaRequest) bool {
		return r.Object == testPrefix+".upload_state"
	})).Return(&storage.ObjectMetadata{Name: testPrefix + ".upload_state", Generation: 5}, nil).Once().Run(func(args mock.Arguments) {
		persisted = args.Get(1).(storage.InsertObjectMediaRequest).Contents
	})
	s.raw.On("ComposeObject", mock.Anything, mock.MatchedBy(func(r storage.ComposeObjectRequest) bool {
		return r.IfGenerationMatch != nil && *r.IfGenerationMatch == 77
	})).Return(&storage.ObjectMetadata{Name: testDestination, Generation: 78}, nil).Once()

	// act
	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   2,
		Prefix:      testPrefix,
		Resumable:   true,
		CustomData:  "[7]",
	})
	s.Require().NoError(err)
	s.uploadAll(state)
	metadata, err := state.WaitForCompletion(context.Background())
	cleanupErr := state.EagerCleanup(context.Background())

	// assert
	s.Require().NoError(err)
	s.NoError(cleanupErr)
	s.Equal(int64(78), metadata.Generation)
	s.Equal("ParUpl:"+testPrefix+".upload_state:5", state.SessionID())
	s.JSONEq(`{
		"destination": "final-object",
		"expected_generation": 77,
		"custom_data": "[7]",
		"streams": [
			{"name": "final-object.prefix.upload_shard_0", "resumable_session_id": "session-0"},
			{"name": "final-object.prefix.upload_shard_1", "resumable_session_id": "session-1"}
		]
	}`, string(persisted))
	s.Contains(s.deletes(), testPrefix+".upload_state")
}

func (s *ParallelUploadStateTestSuite) TestMissingDestinationMeansNoPrecondition() {
	// arrange
	s.raw.On("GetObjectMetadata", mock.Anything, mock.Anything).Return(nil, status.Error(codes.NotFound, "no such object")).Once()
	s.expectMarker()
	s.expectShards(1)
	s.expectDeletes()
	s.raw.On("InsertObjectMedia", mock.Anything, mock.Anything).Return(&storage.ObjectMetadata{Name: testPrefix + ".upload_state", Generation: 5}, nil).Once()
	s.raw.On("ComposeObject", mock.Anything, mock.MatchedBy(func(r storage.ComposeObjectRequest) bool {
		return r.IfGenerationMatch == nil
	})).Return(&storage.ObjectMetadata{Name: testDestination, Generation: 1}, nil).Once()

	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   1,
		Prefix:      testPrefix,
		Resumable:   true,
	})
	s.Require().NoError(err)

	// act
	s.uploadAll(state)
	_, err = state.WaitForCompletion(context.Background())

	// assert
	s.NoError(err)
	s.NoError(state.EagerCleanup(context.Background()))
	s.raw.AssertExpectations(s.T())
}

func (s *ParallelUploadStateTestSuite) expectPersistedState(data string) {
	source := &mocks.ObjectReadSource{}
	source.On("Read", mock.Anything, mock.Anything).Return(storage.ReadSourceResult{
		Response: storage.HttpResponse{StatusCode: storage.ReadStatusDone},
	}, nil, []byte(data)).Once()
	source.On("Close").Return(storage.HttpResponse{}, nil).Maybe()

	s.raw.On("ReadObject", mock.Anything, storage.ReadObjectRangeRequest{
		Bucket:     testBucket,
		Object:     testPrefix + ".upload_state",
		Generation: pointer.To(int64(5)),
	}).Return(source, nil).Once()
}

func (s *ParallelUploadStateTestSuite) TestResumeWithDifferentShardCountFails() {
	// arrange
	s.expectPersistedState(`{"destination":"final-object","expected_generation":0,"custom_data":"","streams":[
		{"name":"a","resumable_session_id":"session-0"},
		{"name":"b","resumable_session_id":"session-1"}]}`)

	// act
	_, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:          testBucket,
		Destination:     testDestination,
		NumShards:       3,
		ResumeSessionID: FormatSessionID(testPrefix+".upload_state", 5),
	})

	// assert
	s.Equal(codes.Internal, status.Code(err))
	s.Contains(err.Error(), "previously specified number of shards")
	s.raw.AssertNotCalled(s.T(), "RestoreResumableUpload", mock.Anything, mock.Anything)
	s.raw.AssertNotCalled(s.T(), "CreateResumableUpload", mock.Anything, mock.Anything)
	s.raw.AssertNotCalled(s.T(), "InsertObjectMedia", mock.Anything, mock.Anything)
	s.raw.AssertNotCalled(s.T(), "DeleteObject", mock.Anything, mock.Anything)
}

func (s *ParallelUploadStateTestSuite) TestResumeWithDifferentDestinationFails() {
	// arrange
	s.expectPersistedState(`{"destination":"other-object","expected_generation":0,"streams":[
		{"name":"a","resumable_session_id":"session-0"}]}`)

	// act
	_, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:          testBucket,
		Destination:     testDestination,
		NumShards:       1,
		ResumeSessionID: FormatSessionID(testPrefix+".upload_state", 5),
	})

	// assert
	s.Equal(codes.Internal, status.Code(err))
	s.Contains(err.Error(), "resumable session ID doesn't match")
	s.raw.AssertNotCalled(s.T(), "RestoreResumableUpload", mock.Anything, mock.Anything)
}

func (s *ParallelUploadStateTestSuite) TestResumeRestoresSessionsAndSkipsFinishedShards() {
	// arrange
	s.expectPersistedState(`{"destination":"final-object","expected_generation":0,"custom_data":"","streams":[
		{"name":"final-object.prefix.upload_shard_0","resumable_session_id":"session-0"},
		{"name":"final-object.prefix.upload_shard_1","resumable_session_id":"session-1"}]}`)

	finished := &mocks.ResumableUploadSession{}
	finished.On("NextExpectedByte").Return(uint64(0))
	finished.On("SessionID").Return("session-0").Maybe()
	finished.On("ResetSession", mock.Anything).Return(storage.ResumableUploadResponse{
		UploadState: storage.UploadDone,
		Payload:     &storage.ObjectMetadata{Name: ShardName(testPrefix, 0), Generation: 100, Size: 7},
	}, nil).Once()

	pending := &mocks.ResumableUploadSession{}
	pending.On("NextExpectedByte").Return(uint64(0))
	pending.On("SessionID").Return("session-1").Maybe()
	pending.On("ResetSession", mock.Anything).Return(storage.ResumableUploadResponse{
		UploadState:   storage.UploadInProgress,
		CommittedSize: pointer.To(uint64(3)),
	}, nil).Once()
	pending.On("UploadFinalChunk", mock.Anything, []byte("rd-1"), uint64(7), storage.HashValues{}).Return(storage.ResumableUploadResponse{
		UploadState: storage.UploadDone,
		Payload:     &storage.ObjectMetadata{Name: ShardName(testPrefix, 1), Generation: 101, Size: 7},
	}, nil).Once()

	s.raw.On("RestoreResumableUpload", mock.Anything, "session-0").Return(finished, nil).Once()
	s.raw.On("RestoreResumableUpload", mock.Anything, "session-1").Return(pending, nil).Once()
	s.raw.On("ComposeObject", mock.Anything, mock.Anything).Return(&storage.ObjectMetadata{Name: testDestination, Generation: 9}, nil).Once()
	s.expectDeletes()

	// act
	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:          testBucket,
		Destination:     testDestination,
		NumShards:       2,
		ResumeSessionID: FormatSessionID(testPrefix+".upload_state", 5),
	})
	s.Require().NoError(err)
	shards := state.Shards()
	finishedEarly := shards[0].Finished()
	offset := shards[1].NextExpectedByte()
	_, err = shards[1].Write([]byte("rd-1"))
	s.Require().NoError(err)
	s.Require().NoError(shards[1].Close())
	metadata, err := state.WaitForCompletion(context.Background())

	// assert
	s.Require().NoError(err)
	s.True(finishedEarly)
	s.Equal(uint64(3), offset)
	s.Equal(int64(9), metadata.Generation)
	s.NoError(state.EagerCleanup(context.Background()))
	s.ElementsMatch([]string{ShardName(testPrefix, 0), ShardName(testPrefix, 1), testPrefix + ".upload_state", testPrefix}, s.deletes())
}

func (s *ParallelUploadStateTestSuite) TestCloseAbandonsOutstandingShards() {
	// arrange
	s.expectMarker()
	s.expectShards(2)
	s.expectDeletes()
	s.raw.On("DeleteResumableUpload", mock.Anything, "session-0").Return(nil).Once()
	s.raw.On("DeleteResumableUpload", mock.Anything, "session-1").Return(status.Error(codes.NotFound, "gone")).Once()

	state, err := PrepareParallelUpload(context.Background(), s.client, Options{
		Bucket:      testBucket,
		Destination: testDestination,
		NumShards:   2,
		Prefix:      testPrefix,
	})
	s.Require().NoError(err)

	// act
	err = state.Close()
	_, result := state.WaitForCompletion(context.Background())

	// assert
	s.NoError(err)
	s.Equal(codes.Canceled, status.Code(result))
	s.Equal([]string{testPrefix}, s.deletes())
	s.raw.AssertNumberOfCalls(s.T(), "DeleteResumableUpload", 2)
}
