package queries

import (
	"context"
	"fmt"
	"io"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/repositories"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/storageBackends"
)

type OpenObject struct {
	Bucket     string
	Object     string
	Generation *int64
}

// OpenObjectResponse owns Reader, the caller closes it.
type OpenObjectResponse struct {
	Object *storage.ObjectMetadata
	Reader io.ReadSeekCloser
}

func HandleOpenObject(ctx context.Context, query OpenObject) (*OpenObjectResponse, error) {
	scope := middlewares.GetScope(ctx)
	dbContext := ioc.GetDependency[database.Context](scope)
	backend := ioc.GetDependency[storageBackends.StorageBackend](scope)

	object, err := dbContext.Objects().Single(ctx, repositories.NewObjectFilter().
		ByBucket(query.Bucket).
		ByName(query.Object).
		ByGeneration(query.Generation))
	if err != nil {
		return nil, err
	}

	reader, err := backend.OpenBlob(ctx, object.GetBlobKey())
	if err != nil {
		return nil, fmt.Errorf("opening blob of %s: %w", object.GetKey(), err)
	}

	return &OpenObjectResponse{
		Object: object.ToResource(),
		Reader: reader,
	}, nil
}
