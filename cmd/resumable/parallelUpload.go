package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/parallel"
)

var parallelUploadCmdConfig struct {
	resumable     bool
	sessionID     string
	maxStreams    int
	minStreamSize string
	concurrency   int
	contentType   string
	prefix        string
}

var parallelUploadCmd = &cobra.Command{
	Use:   "parallel-upload FILE BUCKET OBJECT",
	Short: "Upload a file as concurrently uploaded shards composed into one object",
	Long: `Upload a file as shards through one resumable session each and compose
them into the destination. With --resumable the upload state is persisted next
to the shards and the printed session id can be passed to --session-id to
continue an interrupted upload.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileName, bucket, object := args[0], args[1], args[2]
		flags := cmd.Flags()

		maxStreams := config.C.Parallel.MaxStreams
		if flags.Changed("max-streams") {
			maxStreams = parallelUploadCmdConfig.maxStreams
		}

		minStreamSize := config.C.Parallel.MinStreamSize
		if flags.Changed("min-stream-size") {
			size, err := humanize.ParseBytes(parallelUploadCmdConfig.minStreamSize)
			if err != nil {
				return fmt.Errorf("invalid --min-stream-size: %w", err)
			}
			minStreamSize = int64(size)
		}

		concurrency := config.C.Parallel.Concurrency
		if flags.Changed("concurrency") {
			concurrency = parallelUploadCmdConfig.concurrency
		}

		progress := newProgress(cmd.ErrOrStderr())
		out := cmd.ErrOrStderr()

		metadata, err := parallel.ParallelUploadFile(cmd.Context(), newClient(), parallel.FileOptions{
			Bucket:                bucket,
			Destination:           object,
			FileName:              fileName,
			ContentType:           parallelUploadCmdConfig.contentType,
			Prefix:                parallelUploadCmdConfig.prefix,
			MaxStreams:            maxStreams,
			MinStreamSize:         minStreamSize,
			Concurrency:           concurrency,
			Resumable:             parallelUploadCmdConfig.resumable,
			ResumeSessionID:       parallelUploadCmdConfig.sessionID,
			IgnoreCleanupFailures: config.C.Parallel.IgnoreCleanupFailures,
			ReaderHook: func(shard int, size int64, r io.Reader) io.Reader {
				bar := progress.addBar(fmt.Sprintf("shard %d", shard), size)
				return bar.ProxyReader(r)
			},
			SessionIDHook: func(sessionID string) {
				_, _ = fmt.Fprintf(out, "session id: %s\n", sessionID)
			},
		})
		progress.wait()
		if err != nil {
			return err
		}

		return printObject(cmd.OutOrStdout(), metadata)
	},
}

func init() {
	flags := parallelUploadCmd.Flags()
	flags.BoolVar(&parallelUploadCmdConfig.resumable, "resumable", false, "persist the upload state so it can be resumed")
	flags.StringVar(&parallelUploadCmdConfig.sessionID, "session-id", "", "resume the parallel upload with this id")
	flags.IntVar(&parallelUploadCmdConfig.maxStreams, "max-streams", 0, "maximum number of shards (default from config)")
	flags.StringVar(&parallelUploadCmdConfig.minStreamSize, "min-stream-size", "", "minimum shard size, e.g. 64MiB (default from config)")
	flags.IntVar(&parallelUploadCmdConfig.concurrency, "concurrency", 0, "shards uploaded at the same time (default from config)")
	flags.StringVar(&parallelUploadCmdConfig.contentType, "content-type", "application/octet-stream", "content type of the object")
	flags.StringVar(&parallelUploadCmdConfig.prefix, "prefix", "", "name prefix of the temporary objects")
}
