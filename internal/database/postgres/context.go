package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/the127/resumable/internal/change"
	db "github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/repositories"
	"github.com/the127/resumable/internal/repositories/postgres"
	"github.com/the127/resumable/internal/utils"
)

type Context struct {
	db            *sql.DB
	changeTracker *change.Tracker

	objects *postgres.ObjectRepository
}

func newContext(db *sql.DB) *Context {
	return &Context{
		db:            db,
		changeTracker: change.NewTracker(),
	}
}

func (c *Context) Objects() repositories.ObjectRepository {
	if c.objects == nil {
		c.objects = postgres.NewPostgresObjectRepository(c.db, c.changeTracker, db.ObjectType)
	}

	return c.objects
}

func (c *Context) SaveChanges(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: 0,
		ReadOnly:  false,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer utils.IgnoreError(tx.Rollback)

	changes := c.changeTracker.GetChanges()
	for _, changeEntry := range changes {
		err := c.applyChange(ctx, tx, changeEntry)
		if err != nil {
			return fmt.Errorf("failed to apply change: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.changeTracker.Clear()
	return nil
}

func (c *Context) applyChange(ctx context.Context, tx *sql.Tx, entry *change.Entry) error {
	switch entry.GetItemType() {
	case db.ObjectType:
		return c.applyObjectChange(ctx, tx, entry)

	default:
		return fmt.Errorf("unsupported item type: %d", entry.GetItemType())
	}
}

func (c *Context) applyObjectChange(ctx context.Context, tx *sql.Tx, entry *change.Entry) error {
	objects := c.Objects().(*postgres.ObjectRepository)

	switch entry.GetChangeType() {
	case change.Added:
		return objects.ExecuteInsert(ctx, tx, entry.GetItem().(*repositories.Object))

	case change.Deleted:
		return objects.ExecuteDelete(ctx, tx, entry.GetItem().(*repositories.Object))

	default:
		return fmt.Errorf("unsupported change type: %s", entry.GetChangeType())
	}
}
