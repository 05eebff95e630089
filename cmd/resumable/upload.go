package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/the127/resumable/internal/client"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils"
)

var uploadCmdConfig struct {
	sessionID   string
	contentType string
}

var uploadCmd = &cobra.Command{
	Use:   "upload FILE BUCKET OBJECT",
	Short: "Upload a file through a resumable session",
	Long: `Upload a file through a resumable session. The session id is printed
before any data is sent, pass it with --session-id to continue an interrupted
upload.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileName, bucket, object := args[0], args[1], args[2]
		ctx := cmd.Context()
		c := newClient()

		file, err := os.Open(fileName)
		if err != nil {
			return err
		}
		defer utils.IgnoreError(file.Close)

		info, err := file.Stat()
		if err != nil {
			return err
		}

		var stream *client.ObjectWriteStream

		if uploadCmdConfig.sessionID != "" {
			stream, err = c.RestoreObjectWriteStream(ctx, uploadCmdConfig.sessionID)
		} else {
			size := uint64(info.Size())
			stream, err = c.WriteObject(ctx, storage.ResumableUploadRequest{
				Bucket:              bucket,
				Object:              object,
				ContentType:         uploadCmdConfig.contentType,
				UploadContentLength: &size,
			})
		}
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "session id: %s\n", stream.SessionID())

		offset := int64(stream.NextExpectedByte())
		if offset > info.Size() {
			return fmt.Errorf("session already stored %d bytes but %s only has %d", offset, fileName, info.Size())
		}

		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return err
		}

		progress := newProgress(cmd.ErrOrStderr())
		bar := progress.addBar(filepath.Base(fileName), info.Size())
		bar.SetCurrent(offset)

		reader := bar.ProxyReader(file)
		_, err = io.Copy(stream, reader)
		if err == nil {
			err = stream.Close()
		}
		_ = reader.Close()
		progress.wait()

		if err != nil {
			stream.Suspend()
			return fmt.Errorf("upload interrupted, resume with --session-id %s: %w", stream.SessionID(), err)
		}

		return printObject(cmd.OutOrStdout(), stream.Metadata())
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadCmdConfig.sessionID, "session-id", "", "resume the upload session with this id")
	uploadCmd.Flags().StringVar(&uploadCmdConfig.contentType, "content-type", "application/octet-stream", "content type of the object")
}

func printObject(w io.Writer, object *storage.ObjectMetadata) error {
	if object == nil {
		return fmt.Errorf("upload finished without object metadata")
	}

	_, err := fmt.Fprintf(w, "gs://%s/%s#%d (%s, crc32c=%s, components=%d)\n",
		object.Bucket, object.Name, object.Generation,
		humanize.IBytes(object.Size), object.Crc32c, object.ComponentCount)
	return err
}
