package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/jsontypes"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/services/sessionToken"
	"github.com/the127/resumable/internal/services/uploads"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/instructions"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

type WriteUploadChunk struct {
	UploadId string
	// Data is nil for a status query.
	Data   io.Reader
	Offset int64
	// End is the exclusive end of the chunk announced by the client.
	End int64
	// TotalSize is set once the client announces the object size.
	TotalSize *int64
	Hashes    storage.HashValues
}

type WriteUploadChunkResponse struct {
	CommittedSize int64
	// Object is set once the upload is finalized.
	Object *storage.ObjectMetadata
	// OmitRange asks the handler to answer without a Range header.
	OmitRange bool
}

func HandleWriteUploadChunk(ctx context.Context, command WriteUploadChunk) (*WriteUploadChunkResponse, error) {
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

	if session.IsFinalized() {
		return &WriteUploadChunkResponse{
			CommittedSize: session.RangeEnd,
			Object:        session.Result,
		}, nil
	}

	faults, err := instructions.Parse(session.Instructions...)
	if err != nil {
		return nil, err
	}

	if command.Data != nil {
		err = writeChunk(ctx, uploadService, session, faults, command)
		if err != nil {
			return nil, err
		}
	}

	complete := false
	if command.TotalSize != nil {
		switch {
		case session.RangeEnd > *command.TotalSize:
			return nil, storageError.NewStorageError(codes.InvalidArgument).WithMessagef(
				"Invalid request. The total object size %d is smaller than the %d byte(s) already uploaded.",
				*command.TotalSize, session.RangeEnd)

		case session.RangeEnd == *command.TotalSize:
			complete = true
		}
	}

	if session.ExpectedSize != nil && session.RangeEnd == *session.ExpectedSize {
		complete = true
	}

	if complete {
		object, err := finalizeUpload(ctx, uploadService, session, command.Hashes)
		if err != nil {
			return nil, err
		}

		return &WriteUploadChunkResponse{
			CommittedSize: session.RangeEnd,
			Object:        object,
		}, nil
	}

	response := &WriteUploadChunkResponse{
		CommittedSize: session.RangeEnd,
	}

	// status queries always report the range
	fault, ok := instructions.Find(faults, instructions.Return308WithoutRange)
	if ok && command.Data != nil && !session.FiredFaults[fault.String()] {
		session.FiredFaults[fault.String()] = true
		err = uploadService.SaveSession(ctx, session)
		if err != nil {
			return nil, err
		}

		response.OmitRange = true
	}

	return response, nil
}

func writeChunk(ctx context.Context, uploadService uploads.Service, session *jsontypes.UploadSession, faults []instructions.Instruction, command WriteUploadChunk) error {
	limit := int64(-1)
	if session.ExpectedSize != nil {
		limit = max(0, *session.ExpectedSize-session.RangeEnd)
	}

	fault, ok := instructions.Find(faults, instructions.Return503After)
	inject := ok && !session.FiredFaults[fault.String()] && command.End > fault.Bytes
	if inject {
		faultLimit := max(0, fault.Bytes-session.RangeEnd)
		if limit < 0 || faultLimit < limit {
			limit = faultLimit
		}
	}

	err := uploadService.WriteChunk(ctx, session, command.Offset, command.Data, limit)
	if err != nil {
		return err
	}

	if inject {
		session.FiredFaults[fault.String()] = true
		err = uploadService.SaveSession(ctx, session)
		if err != nil {
			return err
		}

		logging.Logger.Infof("injected 503 into upload session %s after %d bytes", session.Id, session.RangeEnd)
		return storageError.NewStorageError(codes.Unavailable).WithMessage("Service Unavailable")
	}

	return nil
}

func finalizeUpload(ctx context.Context, uploadService uploads.Service, session *jsontypes.UploadSession, claimed storage.HashValues) (*storage.ObjectMetadata, error) {
	hashes, err := uploadService.Hashes(session)
	if err != nil {
		return nil, err
	}

	if claimed.Crc32c != "" && claimed.Crc32c != hashes.Crc32c {
		return nil, storageError.NewStorageError(codes.InvalidArgument).WithMessagef(
			"Provided CRC32C %q doesn't match calculated CRC32C %q.", claimed.Crc32c, hashes.Crc32c)
	}

	if claimed.Md5 != "" && claimed.Md5 != hashes.Md5 {
		return nil, storageError.NewStorageError(codes.InvalidArgument).WithMessagef(
			"Provided MD5 hash %q doesn't match calculated MD5 hash %q.", claimed.Md5, hashes.Md5)
	}

	object, err := commitObject(ctx, newObject{
		Bucket:            session.Bucket,
		Name:              session.Object,
		IfGenerationMatch: session.IfGenerationMatch,
		Size:              session.RangeEnd,
		ContentType:       session.ContentType,
		ContentEncoding:   session.ContentEncoding,
		Metadata:          session.Metadata,
		Hashes:            hashes,
		Complete: func(ctx context.Context, blobKey string) error {
			return uploadService.CompleteBlob(ctx, session.BackendState, blobKey)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("finalizing upload: %w", err)
	}

	session.Result = object.ToResource()
	err = uploadService.SaveSession(ctx, session)
	if err != nil {
		return nil, err
	}

	logging.Logger.Debugf("finalized upload session %s as %s#%d", session.Id, object.GetKey(), object.GetGeneration())
	return session.Result, nil
}
