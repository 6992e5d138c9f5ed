package dialects

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/sheetload/internal/core"
)

func init() {
	core.Register(sqliteDialect{})
}

// sqliteDialect writes to a local database file. The form's database field
// holds the file path; host, port and credentials are ignored.
type sqliteDialect struct{}

func (sqliteDialect) Kind() core.DBKind   { return core.KindSQLite }
func (sqliteDialect) DefaultPort() string { return "" }

func (sqliteDialect) ConnectionString(spec core.ConnectionSpec) (string, error) {
	if strings.TrimSpace(spec.Database) == "" {
		return "", fmt.Errorf("database: %w", core.ErrMissingField)
	}
	return "sqlite:" + spec.Database, nil
}

func (sqliteDialect) Open(ctx context.Context, connString string) (core.Destination, error) {
	path, err := sqlitePath(connString)
	if err != nil {
		return nil, err
	}
	return core.OpenSQL(ctx, "sqlite", SQLiteDSN(path), sqliteSyntax{})
}

func sqlitePath(connString string) (string, error) {
	path, ok := strings.CutPrefix(connString, "sqlite:")
	if !ok {
		return "", fmt.Errorf("not a sqlite connection string: %q", connString)
	}
	path = strings.TrimPrefix(path, "//")
	if path == "" {
		return "", fmt.Errorf("database: %w", core.ErrMissingField)
	}
	return path, nil
}

// SQLiteDSN returns the modernc.org/sqlite DSN for a database file, with
// timestamps stored as text the sqlite3 shell can read.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Set("_time_format", "sqlite")
	q.Add("_pragma", "busy_timeout(5000)")
	return "file:" + path + "?" + q.Encode()
}

type sqliteSyntax struct{}

func (sqliteSyntax) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteSyntax) ColumnType(t core.ColumnType) string {
	switch t {
	case core.TypeInt64:
		return "INTEGER"
	case core.TypeFloat64:
		return "REAL"
	case core.TypeBool:
		return "BOOLEAN"
	case core.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (sqliteSyntax) Placeholder(int) string { return "?" }
func (sqliteSyntax) MaxParams() int         { return 32766 }
func (sqliteSyntax) MaxRowsPerInsert() int  { return 0 }

func (sqliteSyntax) TableExistsQuery() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE"
}

func (sqliteSyntax) TransactionalDDL() bool { return true }

// SQLite reports a duplicate table only in the message text.
func (sqliteSyntax) TranslateError(table string, err error) error {
	if strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("%w: %w", core.ErrTableExists, err)
	}
	return err
}
