// Package sql implements SqLiteExecutor and PostgresExecutor: execute a
// configured, fixed statement against a pooled database connection, with
// per-call positional/named/batch parameter binding.
package sql

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"
	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/senatoreg/pyfreeflow/pool"
)

// dbPool is shared process-wide so multiple operator instances
// configured with the same name reuse one connection pool, mirroring
// the upstream ConnectionPool's class-level registry.
var dbPool = pool.New[*sql.DB]()

// registerPool registers a named connection pool. param is a set of
// SQLite PRAGMA statements (key = PRAGMA name, value = its setting)
// applied to every freshly opened connection before it is handed out;
// ignored for non-sqlite drivers.
func registerPool(driver, name, dsn string, maxConnections int, param map[string]string) {
	dbPool.Register(name, maxConnections,
		func(ctx context.Context) (*sql.DB, error) {
			db, err := sql.Open(driver, dsn)
			if err != nil {
				return nil, err
			}
			if err := db.PingContext(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("sql: open %s: %w", name, err)
			}
			if driver == "sqlite3" {
				for pragma, value := range param {
					if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s;", pragma, value)); err != nil {
						db.Close()
						return nil, fmt.Errorf("sql: apply pragma %s on %s: %w", pragma, name, err)
					}
				}
			}
			return db, nil
		},
		func(db *sql.DB) bool {
			return db.Ping() == nil
		},
		func(db *sql.DB) error {
			return db.Close()
		},
	)
}

func getConn(ctx context.Context, name string) (*sql.DB, error) {
	return dbPool.Get(ctx, name)
}

func releaseConn(name string, db *sql.DB) {
	dbPool.Release(name, db)
}
