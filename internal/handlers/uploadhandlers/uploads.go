package uploadhandlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/The127/ioc"
	"github.com/The127/mediatr"
	"github.com/the127/resumable/internal/commands"
	"github.com/the127/resumable/internal/handlers"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/decoding"
	"github.com/the127/resumable/internal/utils/instructions"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

const statusResumeIncomplete = 308

type ObjectResource struct {
	Name            string            `json:"name"`
	ContentType     string            `json:"contentType"`
	ContentEncoding string            `json:"contentEncoding"`
	Metadata        map[string]string `json:"metadata"`
}

// StartUpload serves POST /upload/storage/v1/b/{bucket}/o.
func StartUpload(w http.ResponseWriter, r *http.Request) {
	switch uploadType := r.URL.Query().Get("uploadType"); uploadType {
	case "resumable":
		startResumableUpload(w, r)

	case "media":
		insertMedia(w, r)

	default:
		storageError.HandleHttpError(w, r, storageError.NewStorageError(codes.InvalidArgument).
			WithMessagef("unsupported uploadType %q", uploadType))
	}
}

func startResumableUpload(w http.ResponseWriter, r *http.Request) {
	bucket, err := handlers.PathVar(r, "bucket")
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	var dto ObjectResource
	err = decoding.HttpBodyAsJson(w, r, &dto, true)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = dto.Name
	}

	contentType := dto.ContentType
	if contentType == "" {
		contentType = r.Header.Get(storage.HeaderUploadContentType)
	}

	ifGenerationMatch, err := handlers.OptionalInt64Query(r, "ifGenerationMatch")
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	expectedSize, err := handlers.OptionalInt64Header(r, storage.HeaderUploadContentLength)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	faults, err := instructions.Parse(r.Header.Values(storage.HeaderEmulatorInstructions)...)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	response, err := mediatr.Send[*commands.CreateUploadSessionResponse](ctx, mediator, commands.CreateUploadSession{
		Bucket:            bucket,
		Object:            name,
		ContentType:       contentType,
		ContentEncoding:   dto.ContentEncoding,
		Metadata:          dto.Metadata,
		IfGenerationMatch: ifGenerationMatch,
		ExpectedSize:      expectedSize,
		Instructions:      faults,
	})
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	location := fmt.Sprintf("%s/upload/storage/v1/b/%s/o?uploadType=resumable&upload_id=%s",
		handlers.BaseUrl(r),
		url.PathEscape(bucket),
		url.QueryEscape(response.UploadId))

	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusOK)
}

func insertMedia(w http.ResponseWriter, r *http.Request) {
	bucket, err := handlers.PathVar(r, "bucket")
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	ifGenerationMatch, err := handlers.OptionalInt64Query(r, "ifGenerationMatch")
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	response, err := mediatr.Send[*commands.InsertObjectResponse](ctx, mediator, commands.InsertObject{
		Bucket:            bucket,
		Object:            r.URL.Query().Get("name"),
		Data:              r.Body,
		ContentType:       r.Header.Get("Content-Type"),
		ContentEncoding:   r.URL.Query().Get("contentEncoding"),
		Hashes:            storage.ParseHashHeader(r.Header.Values(storage.HeaderHash)),
		IfGenerationMatch: ifGenerationMatch,
	})
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	handlers.WriteJson(w, r, http.StatusOK, response.Object)
}

func uploadId(r *http.Request) (string, error) {
	id := r.URL.Query().Get("upload_id")
	if id == "" {
		return "", storageError.NewStorageError(codes.InvalidArgument).WithMessage("missing upload_id")
	}

	return id, nil
}

// UploadChunk serves PUT on a session URL: chunks, the final chunk and
// status queries.
func UploadChunk(w http.ResponseWriter, r *http.Request) {
	id, err := uploadId(r)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	command := commands.WriteUploadChunk{
		UploadId: id,
		Hashes:   storage.ParseHashHeader(r.Header.Values(storage.HeaderHash)),
	}

	rangeHeader := r.Header.Get("Content-Range")
	if rangeHeader == "" {
		// the whole object in a single request
		if r.ContentLength < 0 {
			storageError.HandleHttpError(w, r, storageError.NewStorageError(codes.InvalidArgument).
				WithMessage("missing Content-Range"))
			return
		}

		total := r.ContentLength
		command.Data = r.Body
		command.End = total
		command.TotalSize = &total
	} else {
		contentRange, err := storage.ParseContentRange(rangeHeader)
		if err != nil {
			storageError.HandleHttpError(w, r, storageError.NewStorageError(codes.InvalidArgument).
				WithMessage(err.Error()))
			return
		}

		command.TotalSize = contentRange.Total
		if contentRange.First != nil {
			command.Data = io.LimitReader(r.Body, *contentRange.Last-*contentRange.First+1)
			command.Offset = *contentRange.First
			command.End = *contentRange.Last + 1
		}
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	response, err := mediatr.Send[*commands.WriteUploadChunkResponse](ctx, mediator, command)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	if response.Object != nil {
		handlers.WriteJson(w, r, http.StatusOK, response.Object)
		return
	}

	if response.CommittedSize > 0 && !response.OmitRange {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", response.CommittedSize-1))
	}
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(statusResumeIncomplete)
}

// CancelUpload serves DELETE on a session URL.
func CancelUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uploadId(r)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	_, err = mediatr.Send[*commands.CancelUploadSessionResponse](ctx, mediator, commands.CancelUploadSession{
		UploadId: id,
	})
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	w.WriteHeader(storageError.HttpStatusFromCode(codes.Canceled))
}
