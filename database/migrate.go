package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations. It owns its own handle,
// which Close releases.
type Migrator struct {
	m *migrate.Migrate
}

func NewMigrator(config DatabaseConfig) (*Migrator, error) {
	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up runs every pending migration. An up to date schema is not an error.
func (mg *Migrator) Up() error {
	err := mg.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No migrations to run (database is up to date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// Down rolls back every migration.
func (mg *Migrator) Down() error {
	if err := mg.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// EnsureSchema brings the schema up to date.
func EnsureSchema(config DatabaseConfig) error {
	mg, err := NewMigrator(config)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up()
}
