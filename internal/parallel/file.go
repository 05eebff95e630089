package parallel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DefaultMaxStreams    = 64
	DefaultMinStreamSize = 64 * 1024 * 1024
)

type FileOptions struct {
	Bucket      string
	Destination string
	FileName    string
	ContentType string
	Prefix      string

	MaxStreams    int
	MinStreamSize int64
	// Concurrency limits the shards uploaded at the same time.
	Concurrency int

	Resumable       bool
	ResumeSessionID string

	IgnoreCleanupFailures bool

	// ReaderHook wraps the reader of each shard, e.g. for progress bars.
	ReaderHook func(shard int, size int64, r io.Reader) io.Reader
	// SessionIDHook receives the session id of a resumable upload before
	// any data is sent.
	SessionIDHook func(sessionID string)
}

// ComputeParallelFileUploadSplitPoints returns the offsets at which a file of
// fileSize bytes is cut into shards.
func ComputeParallelFileUploadSplitPoints(fileSize int64, maxStreams int, minStreamSize int64) []int64 {
	if fileSize <= 0 {
		return nil
	}

	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}

	if minStreamSize <= 0 {
		minStreamSize = 1
	}

	numStreams := min(int64(maxStreams), max(1, fileSize/minStreamSize))
	streamSize := fileSize / numStreams
	if fileSize%numStreams != 0 {
		streamSize++
	}

	var splitPoints []int64
	for point := streamSize; point < fileSize; point += streamSize {
		splitPoints = append(splitPoints, point)
	}
	return splitPoints
}

func parseSplitPoints(customData string) ([]int64, error) {
	var splitPoints []int64
	if err := json.Unmarshal([]byte(customData), &splitPoints); err != nil {
		return nil, status.Errorf(codes.Internal, "Parallel upload state is corrupted: custom_data is not a list of split points: %v", err)
	}
	return splitPoints, nil
}

type shardRange struct {
	begin int64
	end   int64
}

func shardRanges(splitPoints []int64, fileSize int64) []shardRange {
	ranges := make([]shardRange, 0, len(splitPoints)+1)
	begin := int64(0)
	for _, point := range splitPoints {
		ranges = append(ranges, shardRange{begin: begin, end: point})
		begin = point
	}
	return append(ranges, shardRange{begin: begin, end: fileSize})
}

// ParallelUploadFile uploads a local file as concurrently uploaded shards and
// composes them into the destination.
func ParallelUploadFile(ctx context.Context, c StorageClient, options FileOptions) (*storage.ObjectMetadata, error) {
	info, err := os.Stat(options.FileName)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", options.FileName, err)
	}
	fileSize := info.Size()

	prepare := Options{
		Bucket:          options.Bucket,
		Destination:     options.Destination,
		Prefix:          options.Prefix,
		ContentType:     options.ContentType,
		Resumable:       options.Resumable || options.ResumeSessionID != "",
		ResumeSessionID: options.ResumeSessionID,
	}

	var splitPoints []int64
	if options.ResumeSessionID != "" {
		persisted, err := LoadPersistentState(ctx, c, options.Bucket, options.ResumeSessionID)
		if err != nil {
			return nil, err
		}

		splitPoints, err = parseSplitPoints(persisted.CustomData)
		if err != nil {
			return nil, err
		}

		if len(splitPoints) > 0 && splitPoints[len(splitPoints)-1] > fileSize {
			return nil, status.Errorf(codes.Internal, "Corrupted upload state, %s is smaller than when the upload started", options.FileName)
		}
		prepare.State = persisted
	} else {
		splitPoints = ComputeParallelFileUploadSplitPoints(fileSize, options.MaxStreams, options.MinStreamSize)
	}

	customData, err := json.Marshal(splitPoints)
	if err != nil {
		return nil, err
	}
	if splitPoints == nil {
		customData = []byte("[]")
	}
	prepare.CustomData = string(customData)
	prepare.NumShards = len(splitPoints) + 1

	state, err := PrepareParallelUpload(ctx, c, prepare)
	if err != nil {
		return nil, err
	}

	if options.SessionIDHook != nil && state.SessionID() != "" {
		options.SessionIDHook(state.SessionID())
	}

	ranges := shardRanges(splitPoints, fileSize)
	if err := checkShardOffsets(state, ranges); err != nil {
		state.Fail(err)
		_, _ = state.WaitForCompletion(ctx)
		return nil, err
	}

	group := errgroup.Group{}
	if options.Concurrency > 0 {
		group.SetLimit(options.Concurrency)
	}

	for i, shard := range state.Shards() {
		if shard.Finished() {
			continue
		}

		group.Go(func() error {
			err := uploadShard(options, shard, ranges[i])
			if err != nil {
				shard.fail(err)
			}
			return err
		})
	}

	if err := group.Wait(); err != nil {
		logging.Logger.Warnf("parallel upload of %s failed: %v", options.FileName, err)
	}

	metadata, err := state.WaitForCompletion(ctx)
	cleanupErr := state.EagerCleanup(ctx)
	if err != nil {
		return nil, err
	}

	if cleanupErr != nil && !options.IgnoreCleanupFailures {
		return metadata, cleanupErr
	}

	return metadata, nil
}

// checkShardOffsets makes sure the restored sessions fit the local file.
func checkShardOffsets(state *ParallelUploadState, ranges []shardRange) error {
	for i, shard := range state.Shards() {
		length := uint64(ranges[i].end - ranges[i].begin)

		if shard.Finished() {
			metadata := shard.Metadata()
			if metadata != nil && metadata.Size != length {
				return status.Errorf(codes.Internal, "Corrupted upload state, shard %d was finalized with %d bytes but the local file has %d", i, metadata.Size, length)
			}
			continue
		}

		if shard.NextExpectedByte() > length {
			return status.Errorf(codes.Internal, "Corrupted upload state, shard %d has %d bytes stored but the local file only has %d", i, shard.NextExpectedByte(), length)
		}
	}
	return nil
}

func uploadShard(options FileOptions, shard *ShardWriter, r shardRange) error {
	file, err := os.Open(options.FileName)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	offset := int64(shard.NextExpectedByte())
	size := r.end - r.begin - offset

	var reader io.Reader = io.NewSectionReader(file, r.begin+offset, size)
	if options.ReaderHook != nil {
		reader = options.ReaderHook(shard.Index(), size, reader)
	}

	if _, err := io.Copy(shard, reader); err != nil {
		return err
	}

	return shard.Close()
}
