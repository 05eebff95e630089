package parallel

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"github.com/the127/resumable/internal/client"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/pointer"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ShardWriter uploads one shard. Shards complete independently, the state
// composes the destination once all of them reported.
type ShardWriter struct {
	index  int
	name   string
	stream *client.ObjectWriteStream
	result *future[*storage.ObjectMetadata]
}

func (w *ShardWriter) Write(p []byte) (int, error) {
	n, err := w.stream.Write(p)
	if err != nil {
		w.result.resolve(nil, err)
	}
	return n, err
}

// Close finalizes the shard object.
func (w *ShardWriter) Close() error {
	err := w.stream.Close()
	if err != nil {
		w.result.resolve(nil, err)
		return err
	}

	metadata := w.stream.Metadata()
	if metadata == nil {
		err = status.Errorf(codes.Internal, "shard %s finished without object metadata", w.name)
	}
	w.result.resolve(metadata, err)
	return err
}

// Suspend abandons the shard without finalizing it. The parallel upload then
// resolves to codes.Canceled.
func (w *ShardWriter) Suspend() {
	w.fail(status.Errorf(codes.Canceled, "upload of shard %s was suspended", w.name))
}

func (w *ShardWriter) fail(err error) {
	if !w.result.resolve(nil, err) {
		return
	}

	w.stream.Suspend()
}

func (w *ShardWriter) Index() int {
	return w.index
}

func (w *ShardWriter) ObjectName() string {
	return w.name
}

func (w *ShardWriter) SessionID() string {
	return w.stream.SessionID()
}

// NextExpectedByte is the number of bytes of this shard already stored.
func (w *ShardWriter) NextExpectedByte() uint64 {
	return w.stream.NextExpectedByte()
}

// Finished reports whether the shard already resolved, either because it
// was closed or because a restored session was complete.
func (w *ShardWriter) Finished() bool {
	return w.result.ready()
}

// Metadata is the shard object once the shard was finalized.
func (w *ShardWriter) Metadata() *storage.ObjectMetadata {
	if !w.result.ready() {
		return nil
	}

	metadata, _ := w.result.wait(context.Background())
	return metadata
}

// ParallelUploadState tracks the shards of one parallel upload, composes
// them into the destination and removes the temporary objects afterwards.
type ParallelUploadState struct {
	ctx       context.Context
	client    StorageClient
	composer  *composer
	deleter   *ScopedDeleter
	shards    []*ShardWriter
	resumable bool
	sessionID string
	prefix    string

	completion *future[*storage.ObjectMetadata]

	mu               sync.Mutex
	composeAttempted bool
	cleanedUp        bool
	cleanupErr       error
}

func newParallelUploadState(ctx context.Context, c StorageClient, composer *composer, deleter *ScopedDeleter, shards []*ShardWriter, resumable bool, sessionID string, prefix string) *ParallelUploadState {
	s := &ParallelUploadState{
		ctx:        context.WithoutCancel(ctx),
		client:     c,
		composer:   composer,
		deleter:    deleter,
		shards:     shards,
		resumable:  resumable,
		sessionID:  sessionID,
		prefix:     prefix,
		completion: newFuture[*storage.ObjectMetadata](),
	}

	results := lo.Map(shards, func(shard *ShardWriter, _ int) *future[*storage.ObjectMetadata] {
		shard.result.then(func(metadata *storage.ObjectMetadata, err error) {
			if err == nil && metadata != nil {
				deleter.Add(metadata.Name, metadata.Generation)
			}
		})
		return shard.result
	})

	whenAll(results).then(func(metadata []*storage.ObjectMetadata, err error) {
		go s.finish(metadata, err)
	})

	return s
}

func (s *ParallelUploadState) finish(shards []*storage.ObjectMetadata, err error) {
	if err != nil {
		s.completion.resolve(nil, err)
		return
	}

	s.mu.Lock()
	s.composeAttempted = true
	s.mu.Unlock()

	sources := lo.Map(shards, func(shard *storage.ObjectMetadata, _ int) storage.ComposeSourceObject {
		return storage.ComposeSourceObject{
			Name:       shard.Name,
			Generation: pointer.To(shard.Generation),
		}
	})

	metadata, err := s.composer.compose(s.ctx, sources)
	s.completion.resolve(metadata, err)
}

func (s *ParallelUploadState) Shards() []*ShardWriter {
	return s.shards
}

// SessionID is the "ParUpl:<name>:<generation>" id of a resumable upload and
// empty otherwise.
func (s *ParallelUploadState) SessionID() string {
	return s.sessionID
}

func (s *ParallelUploadState) Prefix() string {
	return s.prefix
}

// WaitForCompletion blocks until every shard reported and the destination was
// composed. It returns the first shard error or the compose result.
func (s *ParallelUploadState) WaitForCompletion(ctx context.Context) (*storage.ObjectMetadata, error) {
	return s.completion.wait(ctx)
}

// Fail abandons every shard that has not finished yet with err.
func (s *ParallelUploadState) Fail(err error) {
	for _, shard := range s.shards {
		shard.fail(err)
	}
}

// EagerCleanup deletes the temporary objects and cancels the sessions of
// unfinished shards. It is refused while shards are outstanding and returns
// the same result when called again. A resumable upload that failed before
// compose keeps its temporary objects and sessions so it can be resumed.
func (s *ParallelUploadState) EagerCleanup(ctx context.Context) error {
	if !s.completion.ready() {
		return status.Error(codes.FailedPrecondition, "Attempted to cleanup parallel upload state while it is still in progress")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cleanedUp {
		return s.cleanupErr
	}
	s.cleanedUp = true

	if s.resumable && !s.composeAttempted {
		// The upload can still be resumed with the session id.
		logging.Logger.Infof("keeping temporary objects of %s for a later resume", s.sessionID)
		return nil
	}

	s.releaseShards(ctx)
	s.cleanupErr = s.deleter.ExecuteDelete(ctx)
	return s.cleanupErr
}

// releaseShards cancels the sessions of shards that never finished and
// registers shard objects that were finalized after their shard failed.
func (s *ParallelUploadState) releaseShards(ctx context.Context) {
	for _, shard := range s.shards {
		if shard.Metadata() != nil {
			continue
		}

		if metadata := shard.stream.Metadata(); metadata != nil {
			s.deleter.Add(metadata.Name, metadata.Generation)
			continue
		}

		err := s.client.DeleteResumableUpload(ctx, shard.SessionID())
		if err != nil && !storageError.IsNotFound(err) {
			logging.Logger.Warnf("failed to cancel upload session of shard %s: %v", shard.ObjectName(), err)
		}
	}
}

// Close abandons outstanding shards, waits for the result and cleans up.
func (s *ParallelUploadState) Close() error {
	s.Fail(status.Error(codes.Canceled, "parallel upload closed before all shards finished"))

	_, _ = s.completion.wait(context.Background())
	return s.EagerCleanup(s.ctx)
}
