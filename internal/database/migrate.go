package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	mysqlmigrate "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// NewMigrator binds the embedded migrations to one connection taken from the
// pool. CloseMigrator hands that connection back; the pool stays open.
func NewMigrator(ctx context.Context, db *Database) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("migration connection: %w", err)
	}
	driver, err := mysqlmigrate.WithConnection(ctx, conn, &mysqlmigrate.Config{})
	if err != nil {
		_ = conn.Close()
		_ = src.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		_ = driver.Close()
		_ = src.Close()
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

func CloseMigrator(m *migrate.Migrate) error {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return fmt.Errorf("closing migrator: %w", err)
	}
	return nil
}

// MigrateUp applies all pending migrations; an up-to-date schema is not an error.
func MigrateUp(ctx context.Context, db *Database) (err error) {
	m, err := NewMigrator(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := CloseMigrator(m); err == nil {
			err = cerr
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
