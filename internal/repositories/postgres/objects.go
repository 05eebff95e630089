package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq/hstore"
	"github.com/the127/resumable/internal/change"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/repositories"
	"github.com/the127/resumable/internal/utils"
)

type postgresObject struct {
	postgresBaseModel
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
	metadata        hstore.Hstore
	blobKey         string
}

func (o *postgresObject) Map() *repositories.Object {
	var metadata map[string]string
	if len(o.metadata.Map) > 0 {
		metadata = make(map[string]string, len(o.metadata.Map))
		for k, v := range o.metadata.Map {
			metadata[k] = v.String
		}
	}

	return repositories.NewObjectFromDB(
		o.bucket,
		o.name,
		o.generation,
		o.metageneration,
		o.size,
		o.contentType,
		o.contentEncoding,
		o.crc32c,
		o.md5Hash,
		o.componentCount,
		metadata,
		o.blobKey,
		o.MapBase(),
	)
}

func newPostgresObject(object *repositories.Object) *postgresObject {
	metadata := hstore.Hstore{
		Map: make(map[string]sql.NullString),
	}

	for k, v := range object.GetMetadata() {
		metadata.Map[k] = sql.NullString{String: v, Valid: true}
	}

	return &postgresObject{
		postgresBaseModel: newPostgresBaseModel(object.BaseModel),
		bucket:            object.GetBucket(),
		name:              object.GetName(),
		generation:        object.GetGeneration(),
		metageneration:    object.GetMetageneration(),
		size:              object.GetSize(),
		contentType:       object.GetContentType(),
		contentEncoding:   object.GetContentEncoding(),
		crc32c:            object.GetCrc32c(),
		md5Hash:           object.GetMd5Hash(),
		componentCount:    object.GetComponentCount(),
		metadata:          metadata,
		blobKey:           object.GetBlobKey(),
	}
}

func (o *postgresObject) scanTargets() []any {
	return []any{
		&o.id,
		&o.createdAt,
		&o.updatedAt,
		&o.xmin,
		&o.bucket,
		&o.name,
		&o.generation,
		&o.metageneration,
		&o.size,
		&o.contentType,
		&o.contentEncoding,
		&o.crc32c,
		&o.md5Hash,
		&o.componentCount,
		&o.metadata,
		&o.blobKey,
	}
}

type ObjectRepository struct {
	db            *sql.DB
	changeTracker *change.Tracker
	entityType    int
}

func NewPostgresObjectRepository(db *sql.DB, changeTracker *change.Tracker, entityType int) *ObjectRepository {
	return &ObjectRepository{
		db:            db,
		changeTracker: changeTracker,
		entityType:    entityType,
	}
}

func (r *ObjectRepository) selectQuery(filter *repositories.ObjectFilter) *sqlbuilder.SelectBuilder {
	s := sqlbuilder.Select(
		"objects.id",
		"objects.created_at",
		"objects.updated_at",
		"objects.xmin",
		"objects.bucket",
		"objects.name",
		"objects.generation",
		"objects.metageneration",
		"objects.size",
		"objects.content_type",
		"objects.content_encoding",
		"objects.crc32c",
		"objects.md5_hash",
		"objects.component_count",
		"objects.metadata",
		"objects.blob_key",
	).From("objects")

	if filter.HasId() {
		s.Where(s.Equal("objects.id", filter.GetId()))
	}

	if filter.HasBucket() {
		s.Where(s.Equal("objects.bucket", filter.GetBucket()))
	}

	if filter.HasName() {
		s.Where(s.Equal("objects.name", filter.GetName()))
	}

	if filter.HasGeneration() {
		s.Where(s.Equal("objects.generation", filter.GetGeneration()))
	}

	s.OrderBy("objects.generation").Desc()

	return s
}

func (r *ObjectRepository) First(ctx context.Context, filter *repositories.ObjectFilter) (*repositories.Object, error) {
	s := r.selectQuery(filter)
	s.Limit(1)

	query, args := s.BuildWithFlavor(sqlbuilder.PostgreSQL)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)
	row := r.db.QueryRowContext(ctx, query, args...)

	var object postgresObject
	err := row.Scan(object.scanTargets()...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("scanning row: %w", err)
	}

	return object.Map(), nil
}

func (r *ObjectRepository) Single(ctx context.Context, filter *repositories.ObjectFilter) (*repositories.Object, error) {
	result, err := r.First(ctx, filter)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, repositories.ErrObjectNotFound(filter)
	}
	return result, nil
}

func (r *ObjectRepository) List(ctx context.Context, filter *repositories.ObjectFilter) ([]*repositories.Object, int, error) {
	s := r.selectQuery(filter)
	s.SelectMore("count(*) over() as total_count")

	query, args := s.BuildWithFlavor(sqlbuilder.PostgreSQL)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying db: %w", err)
	}
	defer utils.PanicOnError(rows.Close, "closing rows")

	var objects []*repositories.Object
	var totalCount int
	for rows.Next() {
		var object postgresObject
		err := rows.Scan(append(object.scanTargets(), &totalCount)...)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning row: %w", err)
		}
		objects = append(objects, object.Map())
	}

	return objects, totalCount, nil
}

func (r *ObjectRepository) Insert(object *repositories.Object) {
	r.changeTracker.Add(change.NewEntry(change.Added, r.entityType, object))
}

func (r *ObjectRepository) ExecuteInsert(ctx context.Context, tx *sql.Tx, object *repositories.Object) error {
	pgObject := newPostgresObject(object)

	s := sqlbuilder.InsertInto("objects").
		Cols(
			"id",
			"created_at",
			"updated_at",
			"bucket",
			"name",
			"generation",
			"metageneration",
			"size",
			"content_type",
			"content_encoding",
			"crc32c",
			"md5_hash",
			"component_count",
			"metadata",
			"blob_key",
		).
		Values(
			pgObject.id,
			pgObject.createdAt,
			pgObject.updatedAt,
			pgObject.bucket,
			pgObject.name,
			pgObject.generation,
			pgObject.metageneration,
			pgObject.size,
			pgObject.contentType,
			pgObject.contentEncoding,
			pgObject.crc32c,
			pgObject.md5Hash,
			pgObject.componentCount,
			pgObject.metadata,
			pgObject.blobKey,
		)

	s.Returning("xmin")

	query, args := s.BuildWithFlavor(sqlbuilder.PostgreSQL)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)
	row := tx.QueryRowContext(ctx, query, args...)

	var xmin uint32

	err := row.Scan(&xmin)
	if err != nil {
		return fmt.Errorf("inserting object: %w", err)
	}

	object.SetVersion(xmin)
	return nil
}

func (r *ObjectRepository) Delete(object *repositories.Object) {
	r.changeTracker.Add(change.NewEntry(change.Deleted, r.entityType, object))
}

func (r *ObjectRepository) ExecuteDelete(ctx context.Context, tx *sql.Tx, object *repositories.Object) error {
	s := sqlbuilder.DeleteFrom("objects")
	s.Where(s.Equal("id", object.GetId()))

	query, args := s.BuildWithFlavor(sqlbuilder.PostgreSQL)
	logging.Logger.Debugf("query: %s, args: %+v", query, args)
	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}

	return nil
}
