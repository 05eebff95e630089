package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/storageBackends"
	"github.com/the127/resumable/internal/utils"
)

type backend struct {
	path     string
	tempPath string
}

type tempState struct {
	id       string
	filePath string
}

func (t tempState) encode() storageBackends.StorageBackendState {
	return storageBackends.StorageBackendState{
		"id":       t.id,
		"filePath": t.filePath,
	}
}

func decodeState(state storageBackends.StorageBackendState) (tempState, error) {
	id, ok := state["id"]
	if !ok {
		return tempState{}, fmt.Errorf("missing id in state")
	}

	filePath, ok := state["filePath"]
	if !ok {
		return tempState{}, fmt.Errorf("missing filePath in state")
	}

	return tempState{
		id:       id,
		filePath: filePath,
	}, nil
}

func New(c config.BlobStorageConfig) (storageBackends.StorageBackend, error) {
	err := os.MkdirAll(c.Directory.Path, 0o755)
	if err != nil {
		return nil, fmt.Errorf("ensuring path exists: %w", err)
	}

	err = os.MkdirAll(c.Directory.TempPath, 0o755)
	if err != nil {
		return nil, fmt.Errorf("ensuring temp path exists: %w", err)
	}

	return &backend{
		path:     c.Directory.Path,
		tempPath: c.Directory.TempPath,
	}, nil
}

func (b *backend) blobPath(key string) string {
	return filepath.Join(b.path, key)
}

func (b *backend) InitiateUpload(_ context.Context, id uuid.UUID, _ string) (storageBackends.StorageBackendState, error) {
	filePath := filepath.Join(b.tempPath, id.String())
	err := os.WriteFile(filePath, []byte{}, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating data file: %w", err)
	}

	return tempState{
		id:       id.String(),
		filePath: filePath,
	}.encode(), nil
}

func (b *backend) UploadAddChunk(_ context.Context, state storageBackends.StorageBackendState, reader io.Reader) (storageBackends.StorageBackendState, error) {
	decodedState, err := decodeState(state)
	if err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}

	dataFile, err := os.OpenFile(decodedState.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening data file: %w", err)
	}

	defer utils.PanicOnError(dataFile.Close, "closing data file")

	_, err = io.Copy(dataFile, reader)
	if err != nil {
		return nil, fmt.Errorf("writing chunk to data file: %w", err)
	}

	return decodedState.encode(), nil
}

func (b *backend) CompleteUpload(_ context.Context, key string, state storageBackends.StorageBackendState) error {
	decodedState, err := decodeState(state)
	if err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}

	err = os.Rename(decodedState.filePath, b.blobPath(key))
	if err != nil {
		return fmt.Errorf("renaming data file: %w", err)
	}

	return nil
}

func (b *backend) AbortUpload(_ context.Context, state storageBackends.StorageBackendState) error {
	decodedState, err := decodeState(state)
	if err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}

	err = os.Remove(decodedState.filePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing data file: %w", err)
	}

	return nil
}

func (b *backend) DeleteBlob(_ context.Context, key string) error {
	err := os.Remove(b.blobPath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing data file: %w", err)
	}

	return nil
}

func (b *backend) OpenBlob(_ context.Context, key string) (io.ReadSeekCloser, error) {
	dataFile, err := os.Open(b.blobPath(key))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, storageBackends.ErrBlobNotFound(key)

	case err != nil:
		return nil, fmt.Errorf("opening data file: %w", err)
	}

	return dataFile, nil
}
