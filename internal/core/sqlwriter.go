package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLSyntax is the per-engine SQL a database/sql destination needs.
type SQLSyntax interface {
	QuoteIdent(name string) string
	ColumnType(t ColumnType) string

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// MaxParams caps bind parameters per statement.
	MaxParams() int

	// MaxRowsPerInsert caps rows per VALUES list; 0 means no cap.
	MaxRowsPerInsert() int

	// TableExistsQuery counts tables with the name bound to its single
	// parameter in the current schema.
	TableExistsQuery() string

	// TransactionalDDL reports whether CREATE and DROP roll back with the
	// surrounding transaction.
	TransactionalDDL() bool
}

// ErrorTranslator is implemented by syntaxes that recognize engine error
// codes. TranslateError returns err wrapped with a core sentinel when the
// code has one, and err unchanged otherwise.
type ErrorTranslator interface {
	TranslateError(table string, err error) error
}

// SchemaStatements returns the DDL to run before inserting: a DROP when an
// existing table is replaced, then a CREATE unless an existing table is
// appended to.
func SchemaStatements(s SQLSyntax, w WriteSpec) ([]string, error) {
	if len(w.Table.Columns) == 0 {
		return nil, ErrNoColumns
	}

	var stmts []string
	switch {
	case w.Exists && w.Policy == PolicyFail:
		return nil, fmt.Errorf("table %q: %w", w.Name, ErrTableExists)
	case w.Exists && w.Policy == PolicyAppend:
		return nil, nil
	case w.Exists:
		stmts = append(stmts, "DROP TABLE "+s.QuoteIdent(w.Name))
	}

	defs := make([]string, len(w.Table.Columns))
	for i, c := range w.Table.Columns {
		defs[i] = s.QuoteIdent(c.Name) + " " + s.ColumnType(c.Type)
	}
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", s.QuoteIdent(w.Name), strings.Join(defs, ", ")))
	return stmts, nil
}

// RowsPerStatement returns how many rows fit one INSERT for a table of
// width columns.
func RowsPerStatement(s SQLSyntax, width, batchSize int) int {
	n := batchSize
	if n <= 0 {
		n = 1
	}
	if width > 0 && n*width > s.MaxParams() {
		n = s.MaxParams() / width
	}
	if m := s.MaxRowsPerInsert(); m > 0 && n > m {
		n = m
	}
	return max(n, 1)
}

// SQLDestination writes through database/sql with multi-row INSERTs.
type SQLDestination struct {
	db     *sql.DB
	syntax SQLSyntax
}

// OpenSQL opens a single-connection pool and pings it.
func OpenSQL(ctx context.Context, driverName, dsn string, syntax SQLSyntax) (*SQLDestination, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	// One load, one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driverName, err)
	}
	return &SQLDestination{db: db, syntax: syntax}, nil
}

// DB exposes the underlying pool.
func (d *SQLDestination) DB() *sql.DB {
	return d.db
}

func (d *SQLDestination) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, d.syntax.TableExistsQuery(), name).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %q: %w", name, err)
	}
	return n > 0, nil
}

func (d *SQLDestination) WriteTable(ctx context.Context, w WriteSpec) (int, error) {
	stmts, err := SchemaStatements(d.syntax, w)
	if err != nil {
		return 0, err
	}

	if !d.syntax.TransactionalDDL() {
		for _, stmt := range stmts {
			if _, err := d.db.ExecContext(ctx, stmt); err != nil {
				return 0, d.prepareError(w.Name, err)
			}
		}
		stmts = nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, d.prepareError(w.Name, err)
		}
	}

	written, err := d.insertRows(ctx, tx, w)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func (d *SQLDestination) prepareError(table string, err error) error {
	if t, ok := d.syntax.(ErrorTranslator); ok {
		err = t.TranslateError(table, err)
	}
	return fmt.Errorf("prepare table %q: %w", table, err)
}

func (d *SQLDestination) insertRows(ctx context.Context, tx *sql.Tx, w WriteSpec) (int, error) {
	t := w.Table
	width := len(t.Columns)
	per := RowsPerStatement(d.syntax, width, w.BatchSize)

	cols := make([]string, width)
	for i, c := range t.Columns {
		cols[i] = d.syntax.QuoteIdent(c.Name)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", d.syntax.QuoteIdent(w.Name), strings.Join(cols, ", "))

	written := 0
	for start := 0; start < t.Rows; start += per {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		end := min(start+per, t.Rows)
		var b strings.Builder
		b.WriteString(prefix)
		args := make([]any, 0, (end-start)*width)
		for i := start; i < end; i++ {
			if i > start {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for j, c := range t.Columns {
				if j > 0 {
					b.WriteString(", ")
				}
				args = append(args, c.Values[i])
				b.WriteString(d.syntax.Placeholder(len(args)))
			}
			b.WriteByte(')')
		}

		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return written, fmt.Errorf("insert rows %d-%d: %w", start+1, end, err)
		}
		written = end
		if w.Written != nil {
			w.Written(written)
		}
	}
	return written, nil
}

func (d *SQLDestination) Close() error {
	return d.db.Close()
}
