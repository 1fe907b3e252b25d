package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/captep/studio/pkg/logger"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"

	// pgx registers itself as a database/sql driver for goose.
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrator opens dsn and builds a goose provider over the embedded scripts.
// With locked set, Up holds a Postgres session advisory lock so replicas that
// start together apply each version once.
func migrator(dsn string, locked bool) (*goose.Provider, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open db for migrations: %w", err)
	}
	scripts, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	var opts []goose.ProviderOption
	if locked {
		locker, err := lock.NewPostgresSessionLocker()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migration locker: %w", err)
		}
		opts = append(opts, goose.WithSessionLocker(locker))
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, scripts, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration provider: %w", err)
	}
	return p, db, nil
}

func migrateUp(ctx context.Context, dsn string, locked bool) error {
	p, db, err := migrator(dsn, locked)
	if err != nil {
		return err
	}
	defer db.Close()
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.FromContext(ctx).Info("Database migrations applied", "applied", len(results), "version", version)
	return nil
}

// ApplyMigrations brings the schema at dsn up to date.
func ApplyMigrations(ctx context.Context, dsn string) error {
	return migrateUp(ctx, dsn, false)
}

// ApplyMigrationsWithLock is ApplyMigrations under a session advisory lock.
func ApplyMigrationsWithLock(ctx context.Context, dsn string) error {
	return migrateUp(ctx, dsn, true)
}

// MigrationStatus reports the applied schema version.
func MigrationStatus(ctx context.Context, dsn string) (int64, error) {
	p, db, err := migrator(dsn, false)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return p.GetDBVersion(ctx)
}
