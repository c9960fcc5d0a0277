// Package sqlstore implementa los repositorios sobre database/sql + sqlx.
// El mismo SQL corre en SQLite (desarrollo y tests) y en Postgres (producción):
// las queries se escriben con ? y se rebindean según el driver.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

type Options struct {
	Backend Backend
	// DSN: ruta del archivo (o "file:...") para SQLite, URL para Postgres.
	DSN            string
	MaxOpenConns   int
	ConnectTimeout time.Duration
}

// DB es el handle compartido por todos los repos.
type DB struct {
	x *sqlx.DB
	d dialect
}

// Open abre el pool, aplica los defaults del backend y hace ping.
func Open(ctx context.Context, opts Options) (*DB, error) {
	d, err := dialectFor(opts.Backend)
	if err != nil {
		return nil, err
	}

	dsn := d.dsn(opts.DSN)
	x, err := sqlx.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name(), err)
	}
	d.configure(x, opts)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := x.PingContext(pctx); err != nil {
		_ = x.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name(), err)
	}

	return &DB{x: x, d: d}, nil
}

func (db *DB) Backend() Backend {
	return db.d.name()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.x.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.x.Close()
}

// Result es lo que devuelve Run.
type Result struct {
	// InsertID solo lo informa SQLite; en Postgres queda en 0 (usar RETURNING).
	InsertID int64
	Affected int64
}

// Query corre un SELECT y devuelve cada fila como columna -> valor.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return queryMaps(ctx, db.x, db.q(query), args)
}

// Run corre un INSERT/UPDATE/DELETE. Los errores de constraints salen ya traducidos.
func (db *DB) Run(ctx context.Context, query string, args ...any) (Result, error) {
	return db.run(ctx, db.x, query, args)
}

// Get escanea una fila en dest (sql.ErrNoRows si no hay).
func (db *DB) Get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, db.x, dest, db.q(query), args...)
}

func (db *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, db.x, dest, db.q(query), args...)
}

// Tx ofrece las mismas operaciones que DB dentro de una transacción.
type Tx struct {
	x  *sqlx.Tx
	db *DB
}

func (tx *Tx) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return queryMaps(ctx, tx.x, tx.db.q(query), args)
}

func (tx *Tx) Run(ctx context.Context, query string, args ...any) (Result, error) {
	return tx.db.run(ctx, tx.x, query, args)
}

func (tx *Tx) Get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, tx.x, dest, tx.db.q(query), args...)
}

func (tx *Tx) Select(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, tx.x, dest, tx.db.q(query), args...)
}

// WithTx corre fn dentro de una transacción; commit si fn devuelve nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	x, err := db.x.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&Tx{x: x, db: db}); err != nil {
		_ = x.Rollback()
		return err
	}
	return x.Commit()
}

func (db *DB) run(ctx context.Context, ex sqlx.ExecerContext, query string, args []any) (Result, error) {
	res, err := ex.ExecContext(ctx, db.q(query), args...)
	if err != nil {
		return Result{}, db.mapErr(err)
	}

	var out Result
	if out.Affected, err = res.RowsAffected(); err != nil {
		return Result{}, fmt.Errorf("rows affected: %w", err)
	}
	if db.d.hasLastInsertID() {
		if out.InsertID, err = res.LastInsertId(); err != nil {
			return Result{}, fmt.Errorf("last insert id: %w", err)
		}
	}
	return out, nil
}

func queryMaps(ctx context.Context, q sqlx.QueryerContext, query string, args []any) ([]map[string]any, error) {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		// algunos drivers devuelven TEXT como []byte
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// q traduce los ? al placeholder del driver.
func (db *DB) q(query string) string {
	return db.x.Rebind(query)
}

// mapErr traduce las violaciones de constraints a los errores del paquete.
func (db *DB) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.d.isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	case db.d.isForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrForeignKeyViolation, err)
	default:
		return err
	}
}

// intValue lee un COUNT(*) de una fila de Query; cada driver lo entrega con su tipo.
func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
}

// nullString: "" se guarda como NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func utc(t time.Time) time.Time {
	return t.UTC()
}
