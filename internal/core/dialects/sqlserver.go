package dialects

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// DefaultODBCDriver is carried in the driver parameter of SQL Server
// connection strings when the spec names none, so they can be handed to
// ODBC-based tools unchanged.
const DefaultODBCDriver = "ODBC Driver 17 for SQL Server"

func init() {
	core.Register(sqlServerDialect{})
}

type sqlServerDialect struct{}

func (sqlServerDialect) Kind() core.DBKind   { return core.KindSQLServer }
func (sqlServerDialect) DefaultPort() string { return "1433" }

func (sqlServerDialect) ConnectionString(spec core.ConnectionSpec) (string, error) {
	return core.FormatURL("sqlserver", spec, url.Values{"driver": {cmp.Or(spec.ODBCDriver, DefaultODBCDriver)}}), nil
}

func (sqlServerDialect) Open(ctx context.Context, connString string) (core.Destination, error) {
	dsn, err := sqlServerDSN(connString)
	if err != nil {
		return nil, err
	}
	return core.OpenSQL(ctx, "sqlserver", dsn, sqlServerSyntax{})
}

// sqlServerDSN moves the database from the URL path into the query, where
// go-mssqldb expects it, and drops the ODBC driver name.
func sqlServerDSN(connString string) (string, error) {
	u, err := core.ParseConnectionURL(connString)
	if err != nil {
		return "", fmt.Errorf("parse sqlserver connection string: %w", err)
	}

	q := u.Query()
	q.Del("driver")
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		q.Set("database", db)
	}
	u.Path = ""
	u.RawPath = ""
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type sqlServerSyntax struct{}

func (sqlServerSyntax) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (sqlServerSyntax) ColumnType(t core.ColumnType) string {
	switch t {
	case core.TypeInt64:
		return "BIGINT"
	case core.TypeFloat64:
		return "FLOAT"
	case core.TypeBool:
		return "BIT"
	case core.TypeTimestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (sqlServerSyntax) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

// SQL Server allows 2100 parameters per request and 1000 rows per VALUES
// list.
func (sqlServerSyntax) MaxParams() int        { return 2000 }
func (sqlServerSyntax) MaxRowsPerInsert() int { return 1000 }

func (sqlServerSyntax) TableExistsQuery() string {
	return "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1"
}

func (sqlServerSyntax) TransactionalDDL() bool { return true }

// "There is already an object named ... in the database."
const mssqlObjectExists = 2714

func (sqlServerSyntax) TranslateError(table string, err error) error {
	var msErr mssql.Error
	if errors.As(err, &msErr) && msErr.Number == mssqlObjectExists {
		return fmt.Errorf("%w: %w", core.ErrTableExists, err)
	}
	return err
}
