package objecthandlers

import (
	"net/http"

	"github.com/The127/ioc"
	"github.com/The127/mediatr"
	"github.com/samber/lo"
	"github.com/the127/resumable/internal/commands"
	"github.com/the127/resumable/internal/handlers"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/queries"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/decoding"
	"github.com/the127/resumable/internal/utils/storageError"
)

type objectRef struct {
	bucket     string
	name       string
	generation *int64
}

func parseObjectRef(r *http.Request) (objectRef, error) {
	bucket, err := handlers.PathVar(r, "bucket")
	if err != nil {
		return objectRef{}, err
	}

	name, err := handlers.PathVar(r, "object")
	if err != nil {
		return objectRef{}, err
	}

	generation, err := handlers.OptionalInt64Query(r, "generation")
	if err != nil {
		return objectRef{}, err
	}

	return objectRef{
		bucket:     bucket,
		name:       name,
		generation: generation,
	}, nil
}

// GetObject serves object metadata, or the object data with alt=media.
func GetObject(w http.ResponseWriter, r *http.Request) {
	ref, err := parseObjectRef(r)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	if r.URL.Query().Get("alt") == "media" {
		downloadObject(w, r, ref)
		return
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	response, err := mediatr.Send[*queries.GetObjectResponse](ctx, mediator, queries.GetObject{
		Bucket:     ref.bucket,
		Object:     ref.name,
		Generation: ref.generation,
	})
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	handlers.WriteJson(w, r, http.StatusOK, response.Object)
}

func DeleteObject(w http.ResponseWriter, r *http.Request) {
	ref, err := parseObjectRef(r)
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

	_, err = mediatr.Send[*commands.DeleteObjectResponse](ctx, mediator, commands.DeleteObject{
		Bucket:            ref.bucket,
		Object:            ref.name,
		Generation:        ref.generation,
		IfGenerationMatch: ifGenerationMatch,
	})
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type ComposeRequest struct {
	SourceObjects []storage.ComposeSourceObject `json:"sourceObjects"`
	Destination   *struct {
		ContentType string            `json:"contentType"`
		Metadata    map[string]string `json:"metadata"`
	} `json:"destination"`
}

// ComposeObject serves POST /storage/v1/b/{bucket}/o/{object}/compose.
func ComposeObject(w http.ResponseWriter, r *http.Request) {
	ref, err := parseObjectRef(r)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	ifGenerationMatch, err := handlers.OptionalInt64Query(r, "ifGenerationMatch")
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	var dto ComposeRequest
	err = decoding.HttpBodyAsJson(w, r, &dto, false)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	command := commands.ComposeObject{
		Bucket:      ref.bucket,
		Destination: ref.name,
		SourceObjects: lo.Map(dto.SourceObjects, func(source storage.ComposeSourceObject, _ int) commands.ComposeSource {
			return commands.ComposeSource{
				Name:       source.Name,
				Generation: source.Generation,
			}
		}),
		IfGenerationMatch: ifGenerationMatch,
	}

	if dto.Destination != nil {
		command.ContentType = dto.Destination.ContentType
		command.Metadata = dto.Destination.Metadata
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	response, err := mediatr.Send[*commands.ComposeObjectResponse](ctx, mediator, command)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	handlers.WriteJson(w, r, http.StatusOK, response.Object)
}
