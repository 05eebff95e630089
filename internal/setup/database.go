package setup

import (
	"context"
	"fmt"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/config"
	"github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/database/inmemory"
	"github.com/the127/resumable/internal/database/postgres"
)

func Database(dc *ioc.DependencyCollection, c config.DatabaseConfig) database.Database {
	db := connectToDatabase(c)

	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) database.Factory {
		return database.NewDbFactory(db)
	})

	ioc.RegisterScoped(dc, func(dp *ioc.DependencyProvider) database.Context {
		dbContext, err := ioc.GetDependency[database.Factory](dp).NewDbContext(context.Background())
		if err != nil {
			panic(fmt.Errorf("failed to create db context: %w", err))
		}
		return dbContext
	})

	return db
}

func connectToDatabase(c config.DatabaseConfig) database.Database {
	var db database.Database
	var err error

	switch c.Mode {
	case config.DatabaseModeInMemory:
		db, err = inmemory.NewInMemoryDatabase()

	case config.DatabaseModePostgres:
		db, err = postgres.NewPostgresDatabase(c.Postgres)

	default:
		panic(fmt.Errorf("unsupported database mode: %s", c.Mode))
	}

	if err != nil {
		panic(fmt.Errorf("failed to connect to database: %w", err))
	}

	return db
}
