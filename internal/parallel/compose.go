package parallel

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/the127/resumable/internal/metrics"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/pointer"
)

// MaxComposeSources is the service limit of sources per compose request.
const MaxComposeSources = 32

const composeTmpSuffix = ".compose-tmp-"

type composer struct {
	client  StorageClient
	deleter *ScopedDeleter

	bucket      string
	destination string
	prefix      string
	contentType string
	metadata    map[string]string

	ifGenerationMatch *int64
}

// compose builds the destination from the sources. More than
// MaxComposeSources sources are first composed into temporary objects, layer
// by layer, and those are registered with the deleter.
func (c *composer) compose(ctx context.Context, sources []storage.ComposeSourceObject) (*storage.ObjectMetadata, error) {
	layer := sources
	next := 0

	for len(layer) > MaxComposeSources {
		var composed []storage.ComposeSourceObject
		for _, chunk := range lo.Chunk(layer, MaxComposeSources) {
			if len(chunk) == 1 {
				composed = append(composed, chunk[0])
				continue
			}

			name := fmt.Sprintf("%s%s%d", c.prefix, composeTmpSuffix, next)
			next++

			metrics.ComposeCalls.WithLabelValues("intermediate").Inc()
			intermediate, err := c.client.ComposeObject(ctx, storage.ComposeObjectRequest{
				Bucket:            c.bucket,
				Destination:       name,
				SourceObjects:     chunk,
				ContentType:       c.contentType,
				IfGenerationMatch: pointer.To(int64(0)),
			})
			if err != nil {
				return nil, err
			}

			c.deleter.Add(intermediate.Name, intermediate.Generation)
			composed = append(composed, storage.ComposeSourceObject{
				Name:       intermediate.Name,
				Generation: pointer.To(intermediate.Generation),
			})
		}
		layer = composed
	}

	metrics.ComposeCalls.WithLabelValues("final").Inc()
	return c.client.ComposeObject(ctx, storage.ComposeObjectRequest{
		Bucket:            c.bucket,
		Destination:       c.destination,
		SourceObjects:     layer,
		ContentType:       c.contentType,
		Metadata:          c.metadata,
		IfGenerationMatch: c.ifGenerationMatch,
	})
}
