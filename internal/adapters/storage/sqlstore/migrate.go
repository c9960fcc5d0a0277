package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate aplica las migraciones pendientes del backend. Usa su propia conexión
// porque migrate cierra la base al terminar. Con SQLite en memoria hay que
// llamarla después de Open: la base vive mientras quede una conexión abierta.
func Migrate(opts Options, log zerolog.Logger) error {
	d, err := dialectFor(opts.Backend)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations/"+string(d.name()))
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}

	conn, err := sql.Open(d.driverName(), d.dsn(opts.DSN))
	if err != nil {
		return fmt.Errorf("open %s for migrations: %w", d.name(), err)
	}

	var driver database.Driver
	switch d.name() {
	case BackendPostgres:
		driver, err = migratepgx.WithInstance(conn, &migratepgx.Config{})
	default:
		driver, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("migrations driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(d.name()), driver)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("migrate init: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("db", dbErr).Msg("close migrator")
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr == nil {
		log.Info().Str("backend", string(d.name())).Uint("version", version).Bool("dirty", dirty).Msg("database migrated")
	}
	return nil
}
