package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/the127/resumable/internal/change"
	"github.com/the127/resumable/internal/repositories"
)

const objectsTable = "objects"

// ObjectsTableSchema indexes objects by id and by bucket/name.
func ObjectsTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: objectsTable,
		Indexes: map[string]*memdb.IndexSchema{
			"id": {
				Name:   "id",
				Unique: true,
				Indexer: &UUIDValueIndexer{Getter: func(obj interface{}) uuid.UUID {
					object := obj.(repositories.Object)
					return object.GetId()
				}},
			},
			"key": {
				Name: "key",
				Indexer: &StringValueIndexer{Getter: func(obj interface{}) string {
					object := obj.(repositories.Object)
					return object.GetKey()
				}},
			},
		},
	}
}

type ObjectRepository struct {
	txn           *memdb.Txn
	changeTracker *change.Tracker
	entityType    int
}

func NewInMemoryObjectRepository(txn *memdb.Txn, changeTracker *change.Tracker, entityType int) *ObjectRepository {
	return &ObjectRepository{
		txn:           txn,
		changeTracker: changeTracker,
		entityType:    entityType,
	}
}

func (r *ObjectRepository) iterator(filter *repositories.ObjectFilter) (memdb.ResultIterator, error) {
	if filter.HasBucket() && filter.HasName() {
		return r.txn.Get(objectsTable, "key", repositories.ObjectKey(filter.GetBucket(), filter.GetName()))
	}

	return r.txn.Get(objectsTable, "id")
}

func (r *ObjectRepository) applyFilter(iterator memdb.ResultIterator, filter *repositories.ObjectFilter) ([]*repositories.Object, int, error) {
	var result []*repositories.Object

	obj := iterator.Next()
	for obj != nil {
		typed := obj.(repositories.Object)

		if r.matches(&typed, filter) {
			result = append(result, &typed)
		}

		obj = iterator.Next()
	}

	// latest generation first
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].GetGeneration() > result[j].GetGeneration()
	})

	return result, len(result), nil
}

func (r *ObjectRepository) matches(object *repositories.Object, filter *repositories.ObjectFilter) bool {
	if filter.HasId() && object.GetId() != filter.GetId() {
		return false
	}

	if filter.HasBucket() && object.GetBucket() != filter.GetBucket() {
		return false
	}

	if filter.HasName() && object.GetName() != filter.GetName() {
		return false
	}

	if filter.HasGeneration() && object.GetGeneration() != filter.GetGeneration() {
		return false
	}

	return true
}

func (r *ObjectRepository) First(_ context.Context, filter *repositories.ObjectFilter) (*repositories.Object, error) {
	iterator, err := r.iterator(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get objects: %w", err)
	}

	result, _, err := r.applyFilter(iterator, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to apply filter: %w", err)
	}

	if len(result) == 0 {
		return nil, nil
	}

	return result[0], nil
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

func (r *ObjectRepository) List(_ context.Context, filter *repositories.ObjectFilter) ([]*repositories.Object, int, error) {
	iterator, err := r.iterator(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get objects: %w", err)
	}

	return r.applyFilter(iterator, filter)
}

func (r *ObjectRepository) Insert(object *repositories.Object) {
	r.changeTracker.Add(change.NewEntry(change.Added, r.entityType, object))
}

func (r *ObjectRepository) ExecuteInsert(tx *memdb.Txn, object *repositories.Object) error {
	err := tx.Insert(objectsTable, *object)
	if err != nil {
		return fmt.Errorf("failed to insert object: %w", err)
	}

	return nil
}

func (r *ObjectRepository) Delete(object *repositories.Object) {
	r.changeTracker.Add(change.NewEntry(change.Deleted, r.entityType, object))
}

func (r *ObjectRepository) ExecuteDelete(tx *memdb.Txn, object *repositories.Object) error {
	err := tx.Delete(objectsTable, *object)
	if err != nil && err != memdb.ErrNotFound {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}
