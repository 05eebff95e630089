package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rubenv/sql-migrate"
	"github.com/the127/resumable/internal/config"
	db "github.com/the127/resumable/internal/database"
	"github.com/the127/resumable/internal/logging"
)

//go:embed migrations/*
var migrations embed.FS

type database struct {
	db *sql.DB
}

func NewPostgresDatabase(pc config.PostgresConfig) (db.Database, error) {
	dbConnection, err := ConnectToDatabase(pc)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &database{
		db: dbConnection,
	}, nil
}

func ConnectToDatabase(pc config.PostgresConfig) (*sql.DB, error) {
	logging.Logger.Infof("Connecting to database %s via %s:%d",
		pc.Database,
		pc.Host,
		pc.Port)

	connectionString := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		pc.Host,
		pc.Port,
		pc.Database,
		pc.Username,
		pc.Password,
		pc.SslMode)

	dbConnection, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	return dbConnection, nil
}

func (d *database) Migrate() error {
	source := migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       "migrations",
	}

	logging.Logger.Infof("Applying migrations...")

	n, err := migrate.Exec(d.db, "postgres", source, migrate.Up)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logging.Logger.Infof("Applied %d migrations", n)
	return nil
}

func (d *database) NewContext(_ context.Context) (db.Context, error) {
	return newContext(d.db), nil
}
