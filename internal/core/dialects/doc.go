// Package dialects registers the destination databases a table can be
// loaded into. Import it for its side effects:
//
//	import _ "github.com/JonMunkholm/sheetload/internal/core/dialects"
//
// Each dialect builds a URL-style connection string from the connection
// form, translates it to its driver's DSN and writes through either
// database/sql (MySQL, SQL Server, SQLite) or a native pgx connection
// (PostgreSQL).
package dialects
