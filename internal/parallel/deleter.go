package parallel

import (
	"context"
	"fmt"
	"sync"

	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/metrics"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/pointer"
	"github.com/the127/resumable/internal/utils/storageError"
)

type objectDeleter interface {
	DeleteObject(ctx context.Context, request storage.DeleteObjectRequest) error
}

type deletion struct {
	name       string
	generation *int64
}

// ScopedDeleter remembers temporary objects and deletes them in reverse
// order of registration.
type ScopedDeleter struct {
	client objectDeleter
	bucket string

	mu        sync.Mutex
	deletions []deletion
	enabled   bool
}

func NewScopedDeleter(client objectDeleter, bucket string) *ScopedDeleter {
	return &ScopedDeleter{
		client:  client,
		bucket:  bucket,
		enabled: true,
	}
}

func (d *ScopedDeleter) Add(name string, generation int64) {
	d.add(deletion{name: name, generation: pointer.To(generation)})
}

// AddAnyGeneration is used when the generation of a temporary object is not
// known, e.g. the prefix marker of a resumed upload.
func (d *ScopedDeleter) AddAnyGeneration(name string) {
	d.add(deletion{name: name})
}

func (d *ScopedDeleter) add(entry deletion) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.deletions = append(d.deletions, entry)
}

func (d *ScopedDeleter) Enable(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.enabled = enabled
}

func (d *ScopedDeleter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.deletions)
}

// ExecuteDelete deletes every registered object once. All deletions are
// attempted, the first failure is returned. Objects that are already gone
// count as deleted.
func (d *ScopedDeleter) ExecuteDelete(ctx context.Context) error {
	d.mu.Lock()
	deletions := d.deletions
	enabled := d.enabled
	d.deletions = nil
	d.mu.Unlock()

	if !enabled {
		return nil
	}

	var firstErr error
	for i := len(deletions) - 1; i >= 0; i-- {
		entry := deletions[i]
		err := d.client.DeleteObject(ctx, storage.DeleteObjectRequest{
			Bucket:     d.bucket,
			Object:     entry.name,
			Generation: entry.generation,
		})
		if err == nil || storageError.IsNotFound(err) {
			continue
		}

		metrics.CleanupFailures.Inc()
		logging.Logger.Warnf("failed to delete temporary object gs://%s/%s: %v", d.bucket, entry.name, err)
		if firstErr == nil {
			firstErr = fmt.Errorf("deleting temporary object %s: %w", entry.name, err)
		}
	}
	return firstErr
}
