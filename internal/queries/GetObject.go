package queries

import (
	"context"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/repositories"
	"github.com/the127/resumable/internal/storage"
)

type GetObject struct {
	Bucket     string
	Object     string
	Generation *int64
}

type GetObjectResponse struct {
	Object *storage.ObjectMetadata
}

func HandleGetObject(ctx context.Context, query GetObject) (*GetObjectResponse, error) {
	scope := middlewares.GetScope(ctx)
	dbContext := ioc.GetDependency[database.Context](scope)

	object, err := dbContext.Objects().Single(ctx, repositories.NewObjectFilter().
		ByBucket(query.Bucket).
		ByName(query.Object).
		ByGeneration(query.Generation))
	if err != nil {
		return nil, err
	}

	return &GetObjectResponse{
		Object: object.ToResource(),
	}, nil
}
