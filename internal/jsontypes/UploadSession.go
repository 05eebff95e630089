package jsontypes

import (
	"github.com/google/uuid"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/storageBackends"
)

type UploadSession struct {
	Id              uuid.UUID         `json:"id"`
	Bucket          string            `json:"bucket"`
	Object          string            `json:"object"`
	ContentType     string            `json:"contentType"`
	ContentEncoding string            `json:"contentEncoding"`
	Metadata        map[string]string `json:"metadata,omitempty"`

	IfGenerationMatch *int64 `json:"ifGenerationMatch,omitempty"`
	// ExpectedSize is the announced X-Upload-Content-Length.
	ExpectedSize *int64 `json:"expectedSize,omitempty"`

	RangeEnd     int64                               `json:"rangeEnd"`
	Crc32cState  []byte                              `json:"crc32cState"`
	Md5State     []byte                              `json:"md5State"`
	BackendState storageBackends.StorageBackendState `json:"backendState"`

	// Result is set once the object was finalized.
	Result *storage.ObjectMetadata `json:"result,omitempty"`

	Instructions []string        `json:"instructions,omitempty"`
	FiredFaults  map[string]bool `json:"firedFaults,omitempty"`
}

func (s *UploadSession) IsFinalized() bool {
	return s.Result != nil
}
