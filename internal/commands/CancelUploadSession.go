package commands

import (
	"context"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/services/sessionToken"
	"github.com/the127/resumable/internal/services/uploads"
)

type CancelUploadSession struct {
	UploadId string
}

type CancelUploadSessionResponse struct{}

func HandleCancelUploadSession(ctx context.Context, command CancelUploadSession) (*CancelUploadSessionResponse, error) {
	scope := middlewares.GetScope(ctx)
	uploadService := ioc.GetDependency[uploads.Service](scope)
	tokenService := ioc.GetDependency[sessionToken.Service](scope)

	sessionId, err := tokenService.Parse(command.UploadId)
	if err != nil {
		return nil, err
	}

	session, err := uploadService.GetSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	err = uploadService.CancelSession(ctx, session)
	if err != nil {
		return nil, err
	}

	return &CancelUploadSessionResponse{}, nil
}
