package sql

import (
	"context"
	gosql "database/sql"
	"fmt"
	"strings"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/envutil"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
)

// Registry typenames and shared version, one per supported dialect.
const (
	SqliteTypeName   = "SqLiteExecutor"
	PostgresTypeName = "PostgresExecutor"
	Version          = "1.0"
)

// Config configures a SQL executor operator.
type Config struct {
	Name           string
	Path           string // sqlite database path, or postgres DSN
	Statement      string
	Param          map[string]string // sqlite only: applied as PRAGMA key = value on connection open
	MaxConnections int
	MaxTasks       int
}

// Operator executes a fixed, configured statement against a pooled
// database connection, binding data["value"] as the statement's
// parameters: a flat list binds positionally, a list of lists runs the
// statement once per inner list (executemany), a map binds named
// parameters, and its absence runs the bare statement. SqLite statements may additionally carry
// %(name)s-style placeholders, substituted from data["placeholder"]
// into the statement text before it is bound and run.
type Operator struct {
	base operator.Base

	name      string
	statement string
	sqlite    bool
}

// RegisterSqlite installs the SqLiteExecutor factory into reg.
func RegisterSqlite(reg *registry.Registry) {
	reg.Register(SqliteTypeName, Version, func(name string, config map[string]any) (any, error) {
		cfg := decodeConfig(name, config)
		registerPool("sqlite3", cfg.Name, cfg.Path, cfg.MaxConnections, cfg.Param)
		return newOperator(cfg, true), nil
	})
}

// RegisterPostgres installs the PostgresExecutor factory into reg.
func RegisterPostgres(reg *registry.Registry) {
	reg.Register(PostgresTypeName, Version, func(name string, config map[string]any) (any, error) {
		cfg := decodeConfig(name, config)
		registerPool("pgx", cfg.Name, cfg.Path, cfg.MaxConnections, nil)
		return newOperator(cfg, false), nil
	})
}

func decodeConfig(name string, config map[string]any) Config {
	cfg := Config{Name: name, MaxConnections: 4, MaxTasks: 4}
	if p, ok := config["path"].(string); ok {
		cfg.Path = envutil.ExpandEnv(p)
	}
	if s, ok := config["statement"].(string); ok {
		cfg.Statement = s
	}
	if param, ok := config["param"].(map[string]any); ok {
		cfg.Param = make(map[string]string, len(param))
		for k, v := range param {
			if s, ok := v.(string); ok {
				cfg.Param[k] = envutil.ExpandEnv(s)
			}
		}
	}
	if mc, ok := config["max_connections"].(int); ok && mc > 0 {
		cfg.MaxConnections = mc
	}
	if mt, ok := config["max_tasks"].(int); ok && mt > 0 {
		cfg.MaxTasks = mt
	}
	return cfg
}

func newOperator(cfg Config, sqlite bool) *Operator {
	o := &Operator{name: cfg.Name, statement: cfg.Statement, sqlite: sqlite}
	o.base = operator.Base{Impl: o, MaxTasks: cfg.MaxTasks}
	return o
}

// Do acquires a pooled connection, runs the configured statement with
// data["value"] bound as parameters, commits, and releases the
// connection whether or not the statement succeeded. Error codes: 101
// no statement configured / bad input type, 102 connection or
// statement failure.
func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	if o.statement == "" {
		return state, envelope.Fail(envelope.CodeBadInput)
	}
	data, ok := value.(map[string]any)
	if !ok {
		return state, envelope.Fail(envelope.CodeBadInput)
	}

	db, err := getConn(ctx, o.name)
	if err != nil {
		return state, envelope.Fail(envelope.CodeTargetFailure)
	}
	defer releaseConn(o.name, db)

	stmt := o.statement
	if o.sqlite {
		if placeholder, ok := data["placeholder"].(map[string]any); ok {
			stmt = substitutePlaceholders(stmt, placeholder)
		}
	}

	rows, err := o.exec(ctx, db, stmt, data["value"])
	if err != nil {
		return state, envelope.Fail(envelope.CodeTargetFailure)
	}

	return state, envelope.New(map[string]any{"resultset": rows})
}

// substitutePlaceholders replaces %(name)s-style placeholders in stmt
// with their values from placeholder, textually, before the statement is
// prepared — for identifiers (table/column names) that parameter binding
// cannot target.
func substitutePlaceholders(stmt string, placeholder map[string]any) string {
	for name, value := range placeholder {
		stmt = strings.ReplaceAll(stmt, fmt.Sprintf("%%(%s)s", name), fmt.Sprint(value))
	}
	return stmt
}

func (o *Operator) exec(ctx context.Context, db *gosql.DB, stmt string, value any) ([]map[string]any, error) {
	switch v := value.(type) {
	case []any:
		if len(v) > 0 {
			if _, isRows := v[0].([]any); isRows {
				return o.executeMany(ctx, db, stmt, v)
			}
		}
		return o.queryOne(ctx, db, stmt, v...)
	case map[string]any:
		return o.queryNamed(ctx, db, stmt, v)
	case nil:
		return o.queryOne(ctx, db, stmt)
	default:
		return nil, fmt.Errorf("sql: unsupported value type %T", value)
	}
}

// executeMany runs the statement once per row within a single
// transaction, mirroring cur.executemany's all-or-nothing semantics.
func (o *Operator) executeMany(ctx context.Context, db *gosql.DB, stmt string, rows []any) ([]map[string]any, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	defer prepared.Close()

	for _, row := range rows {
		params, ok := row.([]any)
		if !ok {
			tx.Rollback()
			return nil, fmt.Errorf("sql: executemany row is not a list")
		}
		if _, err := prepared.ExecContext(ctx, params...); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	return nil, tx.Commit()
}

func (o *Operator) queryOne(ctx context.Context, db *gosql.DB, stmt string, params ...any) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (o *Operator) queryNamed(ctx context.Context, db *gosql.DB, stmt string, params map[string]any) ([]map[string]any, error) {
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, gosql.Named(k, v))
	}
	return o.queryOne(ctx, db, stmt, args...)
}

func scanRows(rows *gosql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, rows.Err()
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
