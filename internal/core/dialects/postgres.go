package dialects

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sheetload/internal/core"
)

func init() {
	core.Register(postgresDialect{})
}

type postgresDialect struct{}

func (postgresDialect) Kind() core.DBKind   { return core.KindPostgreSQL }
func (postgresDialect) DefaultPort() string { return "5432" }

func (postgresDialect) ConnectionString(spec core.ConnectionSpec) (string, error) {
	return core.FormatURL("postgresql", spec, nil), nil
}

func (postgresDialect) Open(ctx context.Context, connString string) (core.Destination, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgresql: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("connect postgresql: %w", err)
	}
	return &postgresDestination{conn: conn}, nil
}

// postgresDestination writes with COPY inside a single transaction, so a
// failed load leaves neither a new table nor partial rows behind.
type postgresDestination struct {
	conn *pgx.Conn
}

func (d *postgresDestination) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := d.conn.QueryRow(ctx, postgresSyntax{}.TableExistsQuery(), name).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %q: %w", name, err)
	}
	return n > 0, nil
}

func (d *postgresDestination) WriteTable(ctx context.Context, w core.WriteSpec) (int, error) {
	stmts, err := core.SchemaStatements(postgresSyntax{}, w)
	if err != nil {
		return 0, err
	}

	tx, err := d.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("prepare table %q: %w", w.Name, postgresSyntax{}.TranslateError(w.Name, err))
		}
	}

	t := w.Table
	batch := max(w.BatchSize, 1)
	row := 0
	src := pgx.CopyFromFunc(func() ([]any, error) {
		if row >= t.Rows {
			return nil, nil
		}
		if row > 0 && row%batch == 0 && w.Written != nil {
			w.Written(row)
		}
		values := t.Row(row)
		row++
		return values, nil
	})

	n, err := tx.CopyFrom(ctx, pgx.Identifier{w.Name}, t.ColumnNames(), src)
	if err != nil {
		return 0, fmt.Errorf("copy into %q: %w", w.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	if w.Written != nil {
		w.Written(int(n))
	}
	return int(n), nil
}

func (d *postgresDestination) Close() error {
	return d.conn.Close(context.Background())
}

// postgresSyntax supplies the DDL. Rows go through COPY, so the
// placeholder and statement limits are unused.
type postgresSyntax struct{}

func (postgresSyntax) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (postgresSyntax) ColumnType(t core.ColumnType) string {
	switch t {
	case core.TypeInt64:
		return "BIGINT"
	case core.TypeFloat64:
		return "DOUBLE PRECISION"
	case core.TypeBool:
		return "BOOLEAN"
	case core.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (postgresSyntax) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresSyntax) MaxParams() int           { return 65535 }
func (postgresSyntax) MaxRowsPerInsert() int    { return 0 }

func (postgresSyntax) TableExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
}

func (postgresSyntax) TransactionalDDL() bool { return true }

// duplicate_table
const pgDuplicateTable = "42P07"

func (postgresSyntax) TranslateError(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateTable {
		return fmt.Errorf("%w: %w", core.ErrTableExists, err)
	}
	return err
}
