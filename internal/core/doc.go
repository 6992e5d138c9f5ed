// Package core provides the business logic for loading spreadsheets into
// relational databases.
//
// It is independent of any UI or transport layer and is shared by the web
// handlers, the command line and the tests.
//
// # Pipeline
//
// A load runs in four steps:
//
//   - Ingest: [ParseFile] reads a CSV or the first sheet of an Excel workbook
//     into an in-memory [Table], inferring a [ColumnType] per column.
//   - Plan: [NewColumnPlan] includes every column with its inferred type; the
//     user may exclude columns or pick another type.
//   - Coerce: [ApplyPlan] drops excluded columns and converts the rest. A
//     column that cannot be converted is kept unchanged and reported as a
//     [CoercionWarning]; it never aborts the load.
//   - Write: [Service.Load] or [Service.StartLoad] connects to the destination
//     described by a [ConnectionSpec], applies the [ConflictPolicy] and
//     writes every row in one transaction where the engine allows it.
//
// # Dialects
//
// Each destination engine implements [Dialect] and registers itself with
// [Register] at init time. The implementations live in package dialects,
// which binaries import for its side effects:
//
//	import _ "github.com/JonMunkholm/sheetload/internal/core/dialects"
//
// Engines reached through database/sql share [SQLDestination], which only
// needs the engine's [SQLSyntax].
//
// # Errors
//
// User-input problems are reported as sentinel errors (for example
// [ErrNoFile], [ErrEmptyTableName], [ErrNoColumns]) before any file or
// database I/O. [MapError] turns any error into a [UserMessage] with an
// action and a support code.
//
// # Concurrency
//
// [Service] is safe for concurrent use. A [LoadLimiter] bounds how many loads
// run at once; every load opens and closes its own connection.
package core
