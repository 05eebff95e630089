package storage

type ResumableUploadRequest struct {
	Bucket          string
	Object          string
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string

	IfGenerationMatch *int64
	// UploadContentLength lets the service finalize the object as soon as
	// this many bytes were received.
	UploadContentLength *uint64
}

type ReadRange struct {
	Begin int64
	// End is exclusive.
	End int64
}

type ReadObjectRangeRequest struct {
	Bucket     string
	Object     string
	Generation *int64

	ReadFromOffset int64
	ReadRange      *ReadRange
	ReadLast       *int64
}

type InsertObjectMediaRequest struct {
	Bucket          string
	Object          string
	Contents        []byte
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string

	IfGenerationMatch *int64
}

type GetObjectMetadataRequest struct {
	Bucket     string
	Object     string
	Generation *int64
}

type ComposeSourceObject struct {
	Name       string `json:"name"`
	Generation *int64 `json:"generation,omitempty,string"`
}

type ComposeObjectRequest struct {
	Bucket        string
	Destination   string
	SourceObjects []ComposeSourceObject
	ContentType   string
	Metadata      map[string]string

	IfGenerationMatch *int64
}

type DeleteObjectRequest struct {
	Bucket     string
	Object     string
	Generation *int64

	IfGenerationMatch *int64
}
