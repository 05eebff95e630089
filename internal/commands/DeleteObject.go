package commands

import (
	"context"
	"fmt"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/repositories"
	"github.com/the127/resumable/internal/storageBackends"
	"github.com/the127/resumable/internal/utils/validate"
)

type DeleteObject struct {
	Bucket     string `validate:"required"`
	Object     string `validate:"required"`
	Generation *int64

	IfGenerationMatch *int64 `validate:"omitempty,min=0"`
}

type DeleteObjectResponse struct{}

func HandleDeleteObject(ctx context.Context, command DeleteObject) (*DeleteObjectResponse, error) {
	err := validate.Validate(command)
	if err != nil {
		return nil, err
	}

	scope := middlewares.GetScope(ctx)
	backend := ioc.GetDependency[storageBackends.StorageBackend](scope)

	var deleted *repositories.Object
	err = withObjectLock(ctx, command.Bucket, command.Object, func(dbContext database.Context) error {
		object, err := dbContext.Objects().Single(ctx, repositories.NewObjectFilter().
			ByBucket(command.Bucket).
			ByName(command.Object).
			ByGeneration(command.Generation))
		if err != nil {
			return err
		}

		err = checkGenerationPrecondition(object, command.IfGenerationMatch)
		if err != nil {
			return err
		}

		dbContext.Objects().Delete(object)
		err = dbContext.SaveChanges(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete object: %w", err)
		}

		deleted = object
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = backend.DeleteBlob(ctx, deleted.GetBlobKey())
	if err != nil {
		logging.Logger.Warnf("failed to delete blob %s: %v", deleted.GetBlobKey(), err)
	}

	return &DeleteObjectResponse{}, nil
}
