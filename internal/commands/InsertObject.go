package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/services/uploads"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/storageError"
	"github.com/the127/resumable/internal/utils/validate"
	"google.golang.org/grpc/codes"
)

type InsertObject struct {
	Bucket          string `validate:"required"`
	Object          string `validate:"required"`
	Data            io.Reader
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
	Hashes          storage.HashValues

	IfGenerationMatch *int64 `validate:"omitempty,min=0"`
}

type InsertObjectResponse struct {
	Object *storage.ObjectMetadata
}

func HandleInsertObject(ctx context.Context, command InsertObject) (*InsertObjectResponse, error) {
	err := validate.Validate(command)
	if err != nil {
		return nil, err
	}

	scope := middlewares.GetScope(ctx)
	uploadService := ioc.GetDependency[uploads.Service](scope)

	staged, err := uploadService.StageBlob(ctx, command.Data, command.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to stage object data: %w", err)
	}

	abort := func() {
		if abortErr := uploadService.AbortBlob(ctx, staged.BackendState); abortErr != nil {
			logging.Logger.Warnf("failed to abort staged blob: %v", abortErr)
		}
	}

	if command.Hashes.Crc32c != "" && command.Hashes.Crc32c != staged.Hashes.Crc32c ||
		command.Hashes.Md5 != "" && command.Hashes.Md5 != staged.Hashes.Md5 {
		abort()
		return nil, storageError.NewStorageError(codes.InvalidArgument).
			WithMessage("Provided hashes do not match the uploaded data.")
	}

	object, err := commitObject(ctx, newObject{
		Bucket:            command.Bucket,
		Name:              command.Object,
		IfGenerationMatch: command.IfGenerationMatch,
		Size:              staged.Size,
		ContentType:       command.ContentType,
		ContentEncoding:   command.ContentEncoding,
		Metadata:          command.Metadata,
		Hashes:            staged.Hashes,
		Complete: func(ctx context.Context, blobKey string) error {
			return uploadService.CompleteBlob(ctx, staged.BackendState, blobKey)
		},
	})
	if err != nil {
		abort()
		return nil, err
	}

	return &InsertObjectResponse{
		Object: object.ToResource(),
	}, nil
}
