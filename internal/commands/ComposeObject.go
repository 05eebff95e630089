package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/The127/ioc"
	"github.com/samber/lo"
	"github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/repositories"
	"github.com/the127/resumable/internal/services/uploads"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/storageBackends"
	"github.com/the127/resumable/internal/utils"
	"github.com/the127/resumable/internal/utils/validate"
)

// MaxComposeSources is the most source objects a single compose accepts.
const MaxComposeSources = 32

type ComposeSource struct {
	Name       string `validate:"required"`
	Generation *int64
}

type ComposeObject struct {
	Bucket        string          `validate:"required"`
	Destination   string          `validate:"required"`
	SourceObjects []ComposeSource `validate:"required,min=1,max=32,dive"`
	ContentType   string
	Metadata      map[string]string

	IfGenerationMatch *int64 `validate:"omitempty,min=0"`
}

type ComposeObjectResponse struct {
	Object *storage.ObjectMetadata
}

func HandleComposeObject(ctx context.Context, command ComposeObject) (*ComposeObjectResponse, error) {
	err := validate.Validate(command)
	if err != nil {
		return nil, err
	}

	scope := middlewares.GetScope(ctx)
	dbContext := ioc.GetDependency[database.Context](scope)
	backend := ioc.GetDependency[storageBackends.StorageBackend](scope)
	uploadService := ioc.GetDependency[uploads.Service](scope)

	sources := make([]*repositories.Object, 0, len(command.SourceObjects))
	for _, source := range command.SourceObjects {
		object, err := dbContext.Objects().Single(ctx, repositories.NewObjectFilter().
			ByBucket(command.Bucket).
			ByName(source.Name).
			ByGeneration(source.Generation))
		if err != nil {
			return nil, err
		}

		sources = append(sources, object)
	}

	readers := make([]io.Reader, 0, len(sources))
	for _, source := range sources {
		blob, err := backend.OpenBlob(ctx, source.GetBlobKey())
		if err != nil {
			return nil, fmt.Errorf("opening source %s: %w", source.GetKey(), err)
		}
		defer utils.IgnoreError(blob.Close)

		readers = append(readers, blob)
	}

	staged, err := uploadService.StageBlob(ctx, io.MultiReader(readers...), command.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to stage composed data: %w", err)
	}

	// composite objects carry no MD5
	hashes := staged.Hashes
	hashes.Md5 = ""

	componentCount := lo.Reduce(sources, func(count int, source *repositories.Object, _ int) int {
		return count + max(1, source.GetComponentCount())
	}, 0)

	object, err := commitObject(ctx, newObject{
		Bucket:            command.Bucket,
		Name:              command.Destination,
		IfGenerationMatch: command.IfGenerationMatch,
		Size:              staged.Size,
		ContentType:       command.ContentType,
		Metadata:          command.Metadata,
		Hashes:            hashes,
		ComponentCount:    componentCount,
		Complete: func(ctx context.Context, blobKey string) error {
			return uploadService.CompleteBlob(ctx, staged.BackendState, blobKey)
		},
	})
	if err != nil {
		if abortErr := uploadService.AbortBlob(ctx, staged.BackendState); abortErr != nil {
			logging.Logger.Warnf("failed to abort staged blob: %v", abortErr)
		}
		return nil, err
	}

	return &ComposeObjectResponse{
		Object: object.ToResource(),
	}, nil
}
