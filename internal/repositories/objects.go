package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils/pointer"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

// Object is one generation of a stored object. Its bytes live in the storage
// backend under the blob key.
type Object struct {
	BaseModel

	bucket          string
	name            string
	generation      int64
	metageneration  int64
	size            int64
	contentType     string
	contentEncoding string
	crc32c          string
	md5Hash         string
	componentCount  int
	metadata        map[string]string
	blobKey         string
}

func NewObject(bucket string, name string, generation int64, size int64, now time.Time) *Object {
	base := NewBaseModel(now)
	return &Object{
		BaseModel:      base,
		bucket:         bucket,
		name:           name,
		generation:     generation,
		metageneration: 1,
		size:           size,
		blobKey:        base.GetId().String(),
	}
}

func NewObjectFromDB(bucket string, name string, generation int64, metageneration int64, size int64, contentType string, contentEncoding string, crc32c string, md5Hash string, componentCount int, metadata map[string]string, blobKey string, base BaseModel) *Object {
	return &Object{
		BaseModel:       base,
		bucket:          bucket,
		name:            name,
		generation:      generation,
		metageneration:  metageneration,
		size:            size,
		contentType:     contentType,
		contentEncoding: contentEncoding,
		crc32c:          crc32c,
		md5Hash:         md5Hash,
		componentCount:  componentCount,
		metadata:        metadata,
		blobKey:         blobKey,
	}
}

func (o *Object) GetBucket() string {
	return o.bucket
}

func (o *Object) GetName() string {
	return o.name
}

// GetKey is bucket and name, the identity of an object across generations.
func (o *Object) GetKey() string {
	return ObjectKey(o.bucket, o.name)
}

func ObjectKey(bucket string, name string) string {
	return fmt.Sprintf("%s/%s", bucket, name)
}

func (o *Object) GetGeneration() int64 {
	return o.generation
}

func (o *Object) GetMetageneration() int64 {
	return o.metageneration
}

func (o *Object) GetSize() int64 {
	return o.size
}

func (o *Object) GetContentType() string {
	return o.contentType
}

func (o *Object) SetContentType(contentType string) {
	o.contentType = contentType
}

func (o *Object) GetContentEncoding() string {
	return o.contentEncoding
}

func (o *Object) SetContentEncoding(contentEncoding string) {
	o.contentEncoding = contentEncoding
}

func (o *Object) GetCrc32c() string {
	return o.crc32c
}

func (o *Object) GetMd5Hash() string {
	return o.md5Hash
}

func (o *Object) SetHashes(hashes storage.HashValues) {
	o.crc32c = hashes.Crc32c
	o.md5Hash = hashes.Md5
}

func (o *Object) GetComponentCount() int {
	return o.componentCount
}

func (o *Object) SetComponentCount(componentCount int) {
	o.componentCount = componentCount
}

func (o *Object) GetMetadata() map[string]string {
	return o.metadata
}

func (o *Object) SetMetadata(metadata map[string]string) {
	o.metadata = metadata
}

func (o *Object) GetBlobKey() string {
	return o.blobKey
}

// ToResource renders the object the way the JSON API returns it.
func (o *Object) ToResource() *storage.ObjectMetadata {
	componentCount := o.componentCount
	if componentCount == 0 {
		componentCount = 1
	}

	return &storage.ObjectMetadata{
		Kind:            "storage#object",
		Id:              fmt.Sprintf("%s/%s/%d", o.bucket, o.name, o.generation),
		Bucket:          o.bucket,
		Name:            o.name,
		Generation:      o.generation,
		Metageneration:  o.metageneration,
		Size:            uint64(o.size),
		ContentType:     o.contentType,
		ContentEncoding: o.contentEncoding,
		Crc32c:          o.crc32c,
		Md5Hash:         o.md5Hash,
		ComponentCount:  componentCount,
		Metadata:        o.metadata,
		TimeCreated:     o.GetCreatedAt().UTC(),
		Updated:         o.GetUpdatedAt().UTC(),
	}
}

type ObjectFilter struct {
	id         *uuid.UUID
	bucket     *string
	name       *string
	generation *int64
}

func NewObjectFilter() *ObjectFilter {
	return &ObjectFilter{}
}

func (f *ObjectFilter) clone() *ObjectFilter {
	cloned := *f
	return &cloned
}

func (f *ObjectFilter) ById(id uuid.UUID) *ObjectFilter {
	cloned := f.clone()
	cloned.id = &id
	return cloned
}

func (f *ObjectFilter) HasId() bool {
	return f.id != nil
}

func (f *ObjectFilter) GetId() uuid.UUID {
	return pointer.DerefOrZero(f.id)
}

func (f *ObjectFilter) ByBucket(bucket string) *ObjectFilter {
	cloned := f.clone()
	cloned.bucket = &bucket
	return cloned
}

func (f *ObjectFilter) HasBucket() bool {
	return f.bucket != nil
}

func (f *ObjectFilter) GetBucket() string {
	return pointer.DerefOrZero(f.bucket)
}

func (f *ObjectFilter) ByName(name string) *ObjectFilter {
	cloned := f.clone()
	cloned.name = &name
	return cloned
}

func (f *ObjectFilter) HasName() bool {
	return f.name != nil
}

func (f *ObjectFilter) GetName() string {
	return pointer.DerefOrZero(f.name)
}

// ByGeneration is ignored when generation is nil, so optional request
// parameters can be passed through.
func (f *ObjectFilter) ByGeneration(generation *int64) *ObjectFilter {
	cloned := f.clone()
	cloned.generation = pointer.Clone(generation)
	return cloned
}

func (f *ObjectFilter) HasGeneration() bool {
	return f.generation != nil
}

func (f *ObjectFilter) GetGeneration() int64 {
	return pointer.DerefOrZero(f.generation)
}

func (f *ObjectFilter) String() string {
	s := fmt.Sprintf("%s/%s", f.GetBucket(), f.GetName())
	if f.HasGeneration() {
		s = fmt.Sprintf("%s#%d", s, f.GetGeneration())
	}
	return s
}

func ErrObjectNotFound(filter *ObjectFilter) error {
	return storageError.NewStorageError(codes.NotFound).WithMessagef("No such object: %s", filter)
}

// ObjectRepository reads objects directly. Inserts and deletes are tracked
// and only applied by Context.SaveChanges.
type ObjectRepository interface {
	Single(ctx context.Context, filter *ObjectFilter) (*Object, error)
	First(ctx context.Context, filter *ObjectFilter) (*Object, error)
	List(ctx context.Context, filter *ObjectFilter) ([]*Object, int, error)
	Insert(object *Object)
	Delete(object *Object)
}
