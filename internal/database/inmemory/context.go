package inmemory

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"
	"github.com/the127/resumable/internal/change"
	db "github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/repositories"
	"github.com/the127/resumable/internal/repositories/inmemory"
)

type Context struct {
	db            *memdb.MemDB
	txn           *memdb.Txn
	changeTracker *change.Tracker

	objects *inmemory.ObjectRepository
}

func newContext(db *memdb.MemDB) *Context {
	return &Context{
		db:            db,
		txn:           db.Txn(false),
		changeTracker: change.NewTracker(),
	}
}

func (c *Context) Objects() repositories.ObjectRepository {
	if c.objects == nil {
		c.objects = inmemory.NewInMemoryObjectRepository(c.txn, c.changeTracker, db.ObjectType)
	}
	return c.objects
}

func (c *Context) SaveChanges(_ context.Context) error {
	tx := c.db.Txn(true)
	defer tx.Abort()

	changes := c.changeTracker.GetChanges()
	for _, changeEntry := range changes {
		err := c.applyChange(tx, changeEntry)
		if err != nil {
			return fmt.Errorf("failed to apply change: %w", err)
		}
	}

	tx.Commit()
	c.changeTracker.Clear()

	// later reads see what was just written
	c.txn = c.db.Txn(false)
	c.objects = nil
	return nil
}

func (c *Context) applyChange(tx *memdb.Txn, entry *change.Entry) error {
	switch entry.GetItemType() {
	case db.ObjectType:
		return c.applyObjectChange(tx, entry)

	default:
		return fmt.Errorf("unsupported item type: %d", entry.GetItemType())
	}
}

func (c *Context) applyObjectChange(tx *memdb.Txn, entry *change.Entry) error {
	objects := c.Objects().(*inmemory.ObjectRepository)

	switch entry.GetChangeType() {
	case change.Added:
		return objects.ExecuteInsert(tx, entry.GetItem().(*repositories.Object))

	case change.Deleted:
		return objects.ExecuteDelete(tx, entry.GetItem().(*repositories.Object))

	default:
		return fmt.Errorf("unsupported change type: %s", entry.GetChangeType())
	}
}
