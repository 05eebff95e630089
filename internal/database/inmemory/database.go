package inmemory

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"
	db "github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/repositories/inmemory"
)

type database struct {
	memDB *memdb.MemDB
}

func NewInMemoryDatabase() (db.Database, error) {
	memDb, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}

	return &database{
		memDB: memDb,
	}, nil
}

func schema() *memdb.DBSchema {
	objects := inmemory.ObjectsTableSchema()

	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			objects.Name: objects,
		},
	}
}

// Migrate is a no-op, the schema is fixed when the database is created.
func (d *database) Migrate() error {
	return nil
}

func (d *database) NewContext(_ context.Context) (db.Context, error) {
	return newContext(d.memDB), nil
}
