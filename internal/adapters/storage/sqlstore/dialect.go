package sqlstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func init() {
	// sqlx no conoce el nombre de driver de modernc.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type dialect interface {
	name() Backend
	driverName() string
	dsn(raw string) string
	configure(x *sqlx.DB, opts Options)
	isUniqueViolation(err error) bool
	isForeignKeyViolation(err error) bool
	// hasLastInsertID: pgx no implementa LastInsertId.
	hasLastInsertID() bool
}

func dialectFor(b Backend) (dialect, error) {
	switch b {
	case BackendSQLite, "":
		return sqliteDialect{}, nil
	case BackendPostgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", b)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) name() Backend      { return BackendSQLite }
func (sqliteDialect) driverName() string { return "sqlite" }

// dsn acepta una ruta ("petsched.db"), ":memory:" o un URI "file:..." ya armado.
func (sqliteDialect) dsn(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == ":memory:":
		raw = "file:petsched?mode=memory&cache=shared"
	case !strings.HasPrefix(raw, "file:"):
		raw = "file:" + raw
	}

	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
	}
	if !isMemoryDSN(raw) {
		params = append(params, "_pragma=journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + strings.Join(params, "&")
}

// configure: SQLite serializa escrituras; una sola conexión evita SQLITE_BUSY
// y mantiene viva la base en memoria.
func (sqliteDialect) configure(x *sqlx.DB, _ Options) {
	x.SetMaxOpenConns(1)
	x.SetMaxIdleConns(1)
	x.SetConnMaxLifetime(0)
}

func (sqliteDialect) hasLastInsertID() bool { return true }

func (sqliteDialect) isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (sqliteDialect) isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, ":memory:")
}

type postgresDialect struct{}

func (postgresDialect) name() Backend      { return BackendPostgres }
func (postgresDialect) driverName() string { return "pgx" }
func (postgresDialect) dsn(raw string) string {
	return strings.TrimSpace(raw)
}

func (postgresDialect) configure(x *sqlx.DB, opts Options) {
	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	x.SetMaxOpenConns(maxOpen)
	x.SetMaxIdleConns(maxOpen / 2)
	x.SetConnMaxIdleTime(5 * time.Minute)
	x.SetConnMaxLifetime(30 * time.Minute)
}

func (postgresDialect) hasLastInsertID() bool { return false }

func (postgresDialect) isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (postgresDialect) isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
