package setup

import (
	"fmt"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/storageBackends"
	"github.com/the127/resumable/internal/storageBackends/directory"
	"github.com/the127/resumable/internal/storageBackends/inmemory"
)

func Blob(dc *ioc.DependencyCollection, c config.BlobStorageConfig) {
	backend := newStorageBackend(c)

	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) storageBackends.StorageBackend {
		return backend
	})
}

func newStorageBackend(c config.BlobStorageConfig) storageBackends.StorageBackend {
	switch c.Mode {
	case config.BlobStorageModeInMemory:
		return inmemory.New()

	case config.BlobStorageModeDirectory:
		backend, err := directory.New(c)
		if err != nil {
			panic(fmt.Errorf("failed to create directory storage backend: %w", err))
		}
		return backend

	default:
		panic(fmt.Errorf("unsupported blob storage mode: %s", c.Mode))
	}
}
