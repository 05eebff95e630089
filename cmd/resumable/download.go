package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils"
)

var downloadCmdConfig struct {
	generation int64
}

var downloadCmd = &cobra.Command{
	Use:   "download BUCKET OBJECT FILE",
	Short: "Download an object, reconnecting on transient failures",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, object, fileName := args[0], args[1], args[2]
		ctx := cmd.Context()
		c := newClient()

		request := storage.ReadObjectRangeRequest{
			Bucket: bucket,
			Object: object,
		}
		if downloadCmdConfig.generation != 0 {
			request.Generation = &downloadCmdConfig.generation
		}

		metadata, err := c.GetObjectMetadata(ctx, storage.GetObjectMetadataRequest{
			Bucket:     bucket,
			Object:     object,
			Generation: request.Generation,
		})
		if err != nil {
			return err
		}

		// pin the generation so a concurrent overwrite cannot mix contents
		request.Generation = &metadata.Generation

		stream, err := c.ReadObject(ctx, request)
		if err != nil {
			return err
		}
		defer utils.IgnoreError(stream.Close)

		file, err := os.Create(fileName)
		if err != nil {
			return err
		}
		defer utils.IgnoreError(file.Close)

		progress := newProgress(cmd.ErrOrStderr())
		bar := progress.addBar(object, int64(metadata.Size))
		reader := bar.ProxyReader(stream)

		n, err := io.CopyBuffer(file, reader, make([]byte, config.C.Client.DownloadBufferSize))
		_ = reader.Close()
		progress.wait()
		if err != nil {
			return err
		}

		if err := file.Sync(); err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s written to %s\n", humanize.IBytes(uint64(n)), fileName)
		return err
	},
}

func init() {
	downloadCmd.Flags().Int64Var(&downloadCmdConfig.generation, "generation", 0, "download this generation instead of the live one")
}
