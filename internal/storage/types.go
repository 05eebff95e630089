package storage

import (
	"net/http"
	"time"
)

type UploadState int

const (
	UploadInProgress UploadState = iota
	UploadDone
)

func (s UploadState) String() string {
	switch s {
	case UploadInProgress:
		return "in-progress"
	case UploadDone:
		return "done"
	default:
		return "unknown"
	}
}

// TranscodingGunzipped is reported by the service when a gzip encoded object
// is decompressed on the fly while it is downloaded.
const TranscodingGunzipped = "gunzipped"

// ObjectMetadata is the JSON object resource. Integer fields are encoded as
// strings on the wire.
type ObjectMetadata struct {
	Kind            string            `json:"kind,omitempty"`
	Id              string            `json:"id,omitempty"`
	Bucket          string            `json:"bucket"`
	Name            string            `json:"name"`
	Generation      int64             `json:"generation,string"`
	Metageneration  int64             `json:"metageneration,string"`
	Size            uint64            `json:"size,string"`
	ContentType     string            `json:"contentType,omitempty"`
	ContentEncoding string            `json:"contentEncoding,omitempty"`
	Crc32c          string            `json:"crc32c,omitempty"`
	Md5Hash         string            `json:"md5Hash,omitempty"`
	ComponentCount  int               `json:"componentCount,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	TimeCreated     time.Time         `json:"timeCreated"`
	Updated         time.Time         `json:"updated"`
}

type HashValues struct {
	Crc32c string
	Md5    string
}

func (h HashValues) IsEmpty() bool {
	return h.Crc32c == "" && h.Md5 == ""
}

type ResumableUploadResponse struct {
	UploadSessionUrl string
	UploadState      UploadState
	// CommittedSize is nil when the service did not report it and the
	// session has to be queried again.
	CommittedSize *uint64
	Payload       *ObjectMetadata
	Annotations   string
}

type HttpResponse struct {
	StatusCode int
	Headers    http.Header
}

// Read sources report StatusCode 100 while more data may follow and 200 once
// the download is complete.
const (
	ReadStatusContinue = http.StatusContinue
	ReadStatusDone     = http.StatusOK
)

type ReadSourceResult struct {
	BytesReceived  int
	Response       HttpResponse
	Generation     *int64
	Metageneration *int64
	Size           *int64
	Transformation *string
	Hashes         HashValues
}
