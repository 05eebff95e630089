package commands

import (
	"context"
	"fmt"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/repositories"
	"github.com/the127/resumable/internal/services/clock"
	"github.com/the127/resumable/internal/services/locking"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/storageBackends"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

func errPreconditionFailed() error {
	return storageError.NewStorageError(codes.FailedPrecondition).
		WithMessage("At least one of the pre-conditions you specified did not hold.")
}

// checkGenerationPrecondition implements ifGenerationMatch. Zero only matches
// when there is no live object.
func checkGenerationPrecondition(current *repositories.Object, ifGenerationMatch *int64) error {
	if ifGenerationMatch == nil {
		return nil
	}

	if *ifGenerationMatch == 0 {
		if current != nil {
			return errPreconditionFailed()
		}
		return nil
	}

	if current == nil || current.GetGeneration() != *ifGenerationMatch {
		return errPreconditionFailed()
	}

	return nil
}

// withObjectLock runs fn on a fresh database context while no other writer
// can change bucket/name.
func withObjectLock(ctx context.Context, bucket string, name string, fn func(dbContext database.Context) error) error {
	scope := middlewares.GetScope(ctx)
	locks := ioc.GetDependency[locking.Service](scope)
	dbFactory := ioc.GetDependency[database.Factory](scope)

	unlock, err := locks.Lock(ctx, repositories.ObjectKey(bucket, name))
	if err != nil {
		return fmt.Errorf("locking object: %w", err)
	}
	defer unlock()

	dbContext, err := dbFactory.NewDbContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to create db context: %w", err)
	}

	return fn(dbContext)
}

type newObject struct {
	Bucket            string
	Name              string
	IfGenerationMatch *int64

	Size            int64
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
	Hashes          storage.HashValues
	ComponentCount  int

	// Complete moves the staged bytes to the blob key of the new object.
	Complete func(ctx context.Context, blobKey string) error
}

// commitObject makes a new generation of an object live, replacing the
// current one when the precondition holds.
func commitObject(ctx context.Context, params newObject) (*repositories.Object, error) {
	scope := middlewares.GetScope(ctx)
	clockService := ioc.GetDependency[clock.Service](scope)
	backend := ioc.GetDependency[storageBackends.StorageBackend](scope)

	var result *repositories.Object
	var replaced *repositories.Object

	err := withObjectLock(ctx, params.Bucket, params.Name, func(dbContext database.Context) error {
		current, err := dbContext.Objects().First(ctx, repositories.NewObjectFilter().
			ByBucket(params.Bucket).
			ByName(params.Name))
		if err != nil {
			return fmt.Errorf("failed to get current object: %w", err)
		}

		err = checkGenerationPrecondition(current, params.IfGenerationMatch)
		if err != nil {
			return err
		}

		now := clockService.Now()
		object := repositories.NewObject(params.Bucket, params.Name, now.UnixMicro(), params.Size, now)
		object.SetContentType(params.ContentType)
		object.SetContentEncoding(params.ContentEncoding)
		object.SetMetadata(params.Metadata)
		object.SetHashes(params.Hashes)
		object.SetComponentCount(params.ComponentCount)

		err = params.Complete(ctx, object.GetBlobKey())
		if err != nil {
			return err
		}

		if current != nil {
			dbContext.Objects().Delete(current)
		}
		dbContext.Objects().Insert(object)

		err = dbContext.SaveChanges(ctx)
		if err != nil {
			if deleteErr := backend.DeleteBlob(ctx, object.GetBlobKey()); deleteErr != nil {
				logging.Logger.Warnf("failed to delete orphaned blob %s: %v", object.GetBlobKey(), deleteErr)
			}
			return fmt.Errorf("failed to save object: %w", err)
		}

		result = object
		replaced = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replaced != nil {
		err = backend.DeleteBlob(ctx, replaced.GetBlobKey())
		if err != nil {
			logging.Logger.Warnf("failed to delete replaced blob %s: %v", replaced.GetBlobKey(), err)
		}
	}

	return result, nil
}
