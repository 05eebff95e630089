package inmemory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/the127/resumable/internal/storageBackends"
)

type backend struct {
	blobs   map[string][]byte
	temp    map[string]*bytes.Buffer
	blobsMu *sync.RWMutex
	tempMu  *sync.Mutex
}

func New() storageBackends.StorageBackend {
	return &backend{
		blobs:   make(map[string][]byte),
		temp:    make(map[string]*bytes.Buffer),
		blobsMu: &sync.RWMutex{},
		tempMu:  &sync.Mutex{},
	}
}

type tempState struct {
	id string
}

func (t tempState) encode() storageBackends.StorageBackendState {
	return storageBackends.StorageBackendState{
		"id": t.id,
	}
}

func decodeTempState(state storageBackends.StorageBackendState) (tempState, error) {
	id, ok := state["id"]
	if !ok {
		return tempState{}, fmt.Errorf("missing id in state")
	}

	return tempState{
		id: id,
	}, nil
}

func (b *backend) InitiateUpload(_ context.Context, id uuid.UUID, _ string) (storageBackends.StorageBackendState, error) {
	b.tempMu.Lock()
	defer b.tempMu.Unlock()

	b.temp[id.String()] = &bytes.Buffer{}

	return tempState{
		id: id.String(),
	}.encode(), nil
}

func (b *backend) UploadAddChunk(_ context.Context, state storageBackends.StorageBackendState, reader io.Reader) (storageBackends.StorageBackendState, error) {
	decodedState, err := decodeTempState(state)
	if err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}

	b.tempMu.Lock()
	defer b.tempMu.Unlock()

	buffer, ok := b.temp[decodedState.id]
	if !ok {
		return nil, fmt.Errorf("upload not initiated")
	}

	_, err = io.Copy(buffer, reader)
	if err != nil {
		return nil, fmt.Errorf("copying chunk to buffer: %w", err)
	}

	return state, nil
}

func (b *backend) CompleteUpload(_ context.Context, key string, state storageBackends.StorageBackendState) error {
	decodedState, err := decodeTempState(state)
	if err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}

	b.tempMu.Lock()
	buffer, ok := b.temp[decodedState.id]
	delete(b.temp, decodedState.id)
	b.tempMu.Unlock()

	if !ok {
		return fmt.Errorf("upload not initiated")
	}

	b.blobsMu.Lock()
	defer b.blobsMu.Unlock()

	b.blobs[key] = buffer.Bytes()
	return nil
}

func (b *backend) AbortUpload(_ context.Context, state storageBackends.StorageBackendState) error {
	decodedState, err := decodeTempState(state)
	if err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}

	b.tempMu.Lock()
	defer b.tempMu.Unlock()

	delete(b.temp, decodedState.id)
	return nil
}

func (b *backend) DeleteBlob(_ context.Context, key string) error {
	b.blobsMu.Lock()
	defer b.blobsMu.Unlock()

	delete(b.blobs, key)
	return nil
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error {
	return nil
}

func (b *backend) OpenBlob(_ context.Context, key string) (io.ReadSeekCloser, error) {
	b.blobsMu.RLock()
	defer b.blobsMu.RUnlock()

	data, ok := b.blobs[key]
	if !ok {
		return nil, storageBackends.ErrBlobNotFound(key)
	}

	return readSeekNopCloser{bytes.NewReader(data)}, nil
}
