package commands

import (
	"context"
	"fmt"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/services/sessionToken"
	"github.com/the127/resumable/internal/services/uploads"
	"github.com/the127/resumable/internal/utils/instructions"
	"github.com/the127/resumable/internal/utils/validate"
)

type CreateUploadSession struct {
	Bucket          string `validate:"required"`
	Object          string `validate:"required"`
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string

	IfGenerationMatch *int64 `validate:"omitempty,min=0"`
	ExpectedSize      *int64 `validate:"omitempty,min=0"`
	Instructions      []instructions.Instruction
}

type CreateUploadSessionResponse struct {
	UploadId string
}

func HandleCreateUploadSession(ctx context.Context, command CreateUploadSession) (*CreateUploadSessionResponse, error) {
	err := validate.Validate(command)
	if err != nil {
		return nil, err
	}

	scope := middlewares.GetScope(ctx)
	uploadService := ioc.GetDependency[uploads.Service](scope)
	tokenService := ioc.GetDependency[sessionToken.Service](scope)

	rawInstructions := make([]string, 0, len(command.Instructions))
	for _, instruction := range command.Instructions {
		rawInstructions = append(rawInstructions, instruction.String())
	}

	session, err := uploadService.StartSession(ctx, uploads.StartSessionParams{
		Bucket:            command.Bucket,
		Object:            command.Object,
		ContentType:       command.ContentType,
		ContentEncoding:   command.ContentEncoding,
		Metadata:          command.Metadata,
		IfGenerationMatch: command.IfGenerationMatch,
		ExpectedSize:      command.ExpectedSize,
		Instructions:      rawInstructions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start upload session: %w", err)
	}

	uploadId, err := tokenService.Issue(session.Id)
	if err != nil {
		return nil, err
	}

	logging.Logger.Debugf("started upload session %s for %s/%s", session.Id, command.Bucket, command.Object)

	return &CreateUploadSessionResponse{
		UploadId: uploadId,
	}, nil
}
