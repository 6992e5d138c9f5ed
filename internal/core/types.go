package core

import (
	"fmt"
	"strings"
	"time"
)

// DBKind identifies a destination database engine.
type DBKind string

const (
	KindMySQL      DBKind = "mysql"
	KindPostgreSQL DBKind = "postgresql"
	KindSQLServer  DBKind = "sqlserver"
	KindSQLite     DBKind = "sqlite"
)

// Label returns the display name used in forms and messages.
func (k DBKind) Label() string {
	switch k {
	case KindMySQL:
		return "MySQL"
	case KindPostgreSQL:
		return "PostgreSQL"
	case KindSQLServer:
		return "SQL Server"
	case KindSQLite:
		return "SQLite"
	default:
		return string(k)
	}
}

// ParseDBKind normalizes a user-supplied engine name.
// Labels ("SQL Server") and common aliases ("postgres", "mssql") are accepted.
func ParseDBKind(s string) (DBKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return KindMySQL, nil
	case "postgresql", "postgres", "pg", "pgx":
		return KindPostgreSQL, nil
	case "sqlserver", "sql server", "mssql":
		return KindSQLServer, nil
	case "sqlite", "sqlite3":
		return KindSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// ColumnType is the fixed set of types a column can be loaded as.
type ColumnType string

const (
	TypeInt64     ColumnType = "int64"
	TypeFloat64   ColumnType = "float64"
	TypeString    ColumnType = "string"
	TypeBool      ColumnType = "bool"
	TypeTimestamp ColumnType = "timestamp"
)

// ColumnTypes lists every selectable type in display order.
var ColumnTypes = []ColumnType{TypeInt64, TypeFloat64, TypeString, TypeBool, TypeTimestamp}

// ParseColumnType maps a type name to a ColumnType. Dataframe dtype names
// ("object", "datetime64[ns]") are understood; anything unrecognized is a string.
func ParseColumnType(s string) ColumnType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int64", "int", "integer", "bigint":
		return TypeInt64
	case "float64", "float", "double", "numeric":
		return TypeFloat64
	case "bool", "boolean":
		return TypeBool
	case "timestamp", "datetime", "datetime64[ns]", "date":
		return TypeTimestamp
	default:
		return TypeString
	}
}

// ConflictPolicy decides what happens when the target table already exists.
type ConflictPolicy string

const (
	PolicyReplace ConflictPolicy = "replace"
	PolicyAppend  ConflictPolicy = "append"
	PolicyFail    ConflictPolicy = "fail"
)

// ParseConflictPolicy validates a policy name.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyReplace, PolicyAppend, PolicyFail:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// ConnectionSpec holds everything needed to reach a destination database.
// It lives only for one load attempt and is never persisted.
type ConnectionSpec struct {
	Kind     DBKind
	Host     string
	Port     string
	Username string
	Password string
	Database string

	// ODBCDriver names the driver carried in SQL Server connection strings.
	// Empty takes the dialect default.
	ODBCDriver string
}

// String omits the password.
func (c ConnectionSpec) String() string {
	return fmt.Sprintf("%s://%s@%s:%s/%s", c.Kind, c.Username, c.Host, c.Port, c.Database)
}

// Column is a named, typed column of a Table. Values holds nil for a missing
// cell and otherwise a value of the Go type matching Type: int64, float64,
// string, bool or time.Time.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// Table is an in-memory ordered set of equally long columns.
type Table struct {
	Columns []Column
	Rows    int
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Row returns the values of row i across all columns.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.Columns))
	for j, c := range t.Columns {
		row[j] = c.Values[i]
	}
	return row
}

// LoadRequest names the destination table and the conflict policy.
type LoadRequest struct {
	TableName string
	Policy    ConflictPolicy
}

// LoadJob is one unit of work for the loader.
type LoadJob struct {
	Conn     ConnectionSpec
	Request  LoadRequest
	FileName string
	Table    *Table
	Warnings []CoercionWarning

	// ClientIP and UserAgent are recorded in the load history.
	ClientIP  string
	UserAgent string
}

// CoercionWarning reports a column that could not be converted to the
// requested type and was kept unchanged.
type CoercionWarning struct {
	Column string     `json:"column"`
	Type   ColumnType `json:"type"`
	Reason string     `json:"reason"`
}

// Message is the user-facing text of the warning.
func (w CoercionWarning) Message() string {
	return fmt.Sprintf("Could not convert column '%s' to %s: %s", w.Column, w.Type, w.Reason)
}

// LoadPhase indicates the current stage of a load.
type LoadPhase string

const (
	PhaseStarting   LoadPhase = "starting"
	PhaseConnecting LoadPhase = "connecting"
	PhasePreparing  LoadPhase = "preparing"
	PhaseWriting    LoadPhase = "writing"
	PhaseComplete   LoadPhase = "complete"
	PhaseFailed     LoadPhase = "failed"
	PhaseCancelled  LoadPhase = "cancelled"
)

// Terminal reports whether no further progress follows this phase.
func (p LoadPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// LoadProgress represents the current state of a load.
type LoadProgress struct {
	LoadID      string    `json:"loadId"`
	Phase       LoadPhase `json:"phase"`
	Percent     int       `json:"percent"`
	RowsWritten int       `json:"rowsWritten"`
	TotalRows   int       `json:"totalRows"`
	Error       string    `json:"error,omitempty"`
}

// LoadResult is the outcome of one load attempt.
type LoadResult struct {
	LoadID       string            `json:"loadId"`
	Success      bool              `json:"success"`
	Kind         DBKind            `json:"kind"`
	TableName    string            `json:"table"`
	Policy       ConflictPolicy    `json:"policy"`
	FileName     string            `json:"fileName"`
	RowsWritten  int               `json:"rowsWritten"`
	Duration     time.Duration     `json:"duration"`
	Warnings     []CoercionWarning `json:"warnings,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorCode    string            `json:"errorCode,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"` // user-facing, from MapError
	ErrorAction  string            `json:"errorAction,omitempty"`
}

// setError records err and its user message on the result.
func (r *LoadResult) setError(err error) {
	msg := MapError(err)
	r.Error = err.Error()
	r.ErrorCode = msg.Code
	r.ErrorMessage = msg.Message
	r.ErrorAction = msg.Action
}

// ProgressCallback is called as a load advances.
type ProgressCallback func(LoadProgress)
