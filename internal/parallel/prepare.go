package parallel

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/the127/resumable/internal/client"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/pointer"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	shardSuffix = ".upload_shard_"
	stateSuffix = ".upload_state"
)

type Options struct {
	Bucket      string
	Destination string
	NumShards   int

	// Prefix names the temporary objects. A random one is chosen when empty.
	Prefix string

	Resumable bool
	// ResumeSessionID continues the upload persisted under this id.
	ResumeSessionID string
	// State is the already loaded state of ResumeSessionID.
	State *PersistentState

	CustomData  string
	ContentType string
	Metadata    map[string]string
}

func ShardName(prefix string, index int) string {
	return fmt.Sprintf("%s%s%d", prefix, shardSuffix, index)
}

// PrepareParallelUpload reserves a prefix, opens one resumable session per
// shard and, in resumable mode, persists their ids. If any step fails the
// objects and sessions created so far are removed again.
func PrepareParallelUpload(ctx context.Context, c StorageClient, options Options) (*ParallelUploadState, error) {
	if options.NumShards <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "number of shards must be positive, got %d", options.NumShards)
	}

	if options.ResumeSessionID != "" {
		return resumeParallelUpload(ctx, c, options)
	}

	prefix := options.Prefix
	if prefix == "" {
		prefix = fmt.Sprintf("%s.%s", options.Destination, uuid.NewString())
	}

	var expectedGeneration *int64
	if options.Resumable {
		destination, err := c.GetObjectMetadata(ctx, storage.GetObjectMetadataRequest{
			Bucket: options.Bucket,
			Object: options.Destination,
		})
		switch {
		case err == nil:
			expectedGeneration = pointer.To(destination.Generation)
		case storageError.IsNotFound(err):
			logging.Logger.Debugf("destination gs://%s/%s does not exist yet", options.Bucket, options.Destination)
		default:
			return nil, err
		}
	}

	deleter := NewScopedDeleter(c, options.Bucket)
	marker, err := c.InsertObjectMedia(ctx, storage.InsertObjectMediaRequest{
		Bucket:            options.Bucket,
		Object:            prefix,
		IfGenerationMatch: pointer.To(int64(0)),
	})
	if err != nil {
		return nil, err
	}
	deleter.Add(marker.Name, marker.Generation)

	sessions := make([]*client.RetryResumableUploadSession, 0, options.NumShards)
	abort := func(cause error) (*ParallelUploadState, error) {
		for _, session := range sessions {
			if err := c.DeleteResumableUpload(ctx, session.SessionID()); err != nil {
				logging.Logger.Warnf("failed to cancel upload session %s: %v", session.SessionID(), err)
			}
		}

		if err := deleter.ExecuteDelete(ctx); err != nil {
			logging.Logger.Warnf("failed to clean up after failed parallel upload: %v", err)
		}
		return nil, cause
	}

	for i := 0; i < options.NumShards; i++ {
		session, err := c.CreateResumableUpload(ctx, storage.ResumableUploadRequest{
			Bucket:            options.Bucket,
			Object:            ShardName(prefix, i),
			ContentType:       options.ContentType,
			IfGenerationMatch: pointer.To(int64(0)),
		})
		if err != nil {
			return abort(err)
		}
		sessions = append(sessions, session)
	}

	sessionID := ""
	if options.Resumable {
		state := PersistentState{
			Destination:        options.Destination,
			ExpectedGeneration: pointer.DerefOrZero(expectedGeneration),
			CustomData:         options.CustomData,
		}
		for i, session := range sessions {
			state.Streams = append(state.Streams, PersistentStream{
				Name:               ShardName(prefix, i),
				ResumableSessionID: session.SessionID(),
			})
		}

		data, err := state.ToJson()
		if err != nil {
			return abort(fmt.Errorf("encoding parallel upload state: %w", err))
		}

		stateObject, err := c.InsertObjectMedia(ctx, storage.InsertObjectMediaRequest{
			Bucket:            options.Bucket,
			Object:            prefix + stateSuffix,
			Contents:          data,
			ContentType:       "application/json",
			IfGenerationMatch: pointer.To(int64(0)),
		})
		if err != nil {
			return abort(err)
		}

		deleter.Add(stateObject.Name, stateObject.Generation)
		sessionID = FormatSessionID(stateObject.Name, stateObject.Generation)
	}

	return buildState(ctx, c, options, deleter, sessions, prefix, expectedGeneration, sessionID), nil
}

func buildState(ctx context.Context, c StorageClient, options Options, deleter *ScopedDeleter, sessions []*client.RetryResumableUploadSession, prefix string, expectedGeneration *int64, sessionID string) *ParallelUploadState {
	shards := make([]*ShardWriter, len(sessions))
	for i, session := range sessions {
		shards[i] = &ShardWriter{
			index:  i,
			name:   ShardName(prefix, i),
			stream: c.NewObjectWriteStream(ctx, session),
			result: newFuture[*storage.ObjectMetadata](),
		}
	}

	composer := &composer{
		client:            c,
		deleter:           deleter,
		bucket:            options.Bucket,
		destination:       options.Destination,
		prefix:            prefix,
		contentType:       options.ContentType,
		metadata:          options.Metadata,
		ifGenerationMatch: expectedGeneration,
	}

	state := newParallelUploadState(ctx, c, composer, deleter, shards, options.ResumeSessionID != "" || options.Resumable, sessionID, prefix)

	// Shards of a resumed upload may already be complete.
	for i, session := range sessions {
		if session.Done() {
			_ = shards[i].Close()
		}
	}

	return state
}

// LoadPersistentState reads the state object named by a parallel upload
// session id.
func LoadPersistentState(ctx context.Context, c StorageClient, bucket string, sessionID string) (*PersistentState, error) {
	name, generation, err := ParseSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	stream, err := c.ReadObject(ctx, storage.ReadObjectRangeRequest{
		Bucket:     bucket,
		Object:     name,
		Generation: pointer.To(generation),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = stream.Close() }()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}

	return ParsePersistentState(data)
}

func resumeParallelUpload(ctx context.Context, c StorageClient, options Options) (*ParallelUploadState, error) {
	stateName, stateGeneration, err := ParseSessionID(options.ResumeSessionID)
	if err != nil {
		return nil, err
	}

	state := options.State
	if state == nil {
		state, err = LoadPersistentState(ctx, c, options.Bucket, options.ResumeSessionID)
		if err != nil {
			return nil, err
		}
	}

	if len(state.Streams) != options.NumShards {
		return nil, status.Errorf(codes.Internal,
			"Specified number of shards (%d) doesn't match the previously specified number of shards (%d) for upload %s",
			options.NumShards, len(state.Streams), options.ResumeSessionID)
	}

	if state.Destination != options.Destination {
		return nil, status.Errorf(codes.Internal,
			"Specified destination (%s) is not the one recorded for the upload (%s), the resumable session ID doesn't match",
			options.Destination, state.Destination)
	}

	prefix := strings.TrimSuffix(stateName, stateSuffix)

	deleter := NewScopedDeleter(c, options.Bucket)
	deleter.AddAnyGeneration(prefix)
	deleter.Add(stateName, stateGeneration)

	sessions := make([]*client.RetryResumableUploadSession, 0, len(state.Streams))
	for _, stream := range state.Streams {
		session, err := c.RestoreResumableUpload(ctx, stream.ResumableSessionID)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	var expectedGeneration *int64
	if state.ExpectedGeneration != 0 {
		expectedGeneration = pointer.To(state.ExpectedGeneration)
	}

	return buildState(ctx, c, options, deleter, sessions, prefix, expectedGeneration, options.ResumeSessionID), nil
}
