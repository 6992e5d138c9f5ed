package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Dialect knows how to reach one kind of destination database.
// Implementations register themselves from package dialects at init time.
type Dialect interface {
	Kind() DBKind

	// DefaultPort is used when the connection form leaves the port empty.
	// SQLite has none and returns "".
	DefaultPort() string

	// ConnectionString builds the URL-style connection string for spec.
	ConnectionString(spec ConnectionSpec) (string, error)

	// Open connects using a string built by ConnectionString and verifies
	// the connection is usable.
	Open(ctx context.Context, connString string) (Destination, error)
}

// Destination is an open connection to a destination database, scoped to a
// single load.
type Destination interface {
	TableExists(ctx context.Context, name string) (bool, error)

	// WriteTable creates the table if needed and inserts all rows of w.Table.
	WriteTable(ctx context.Context, w WriteSpec) (int, error)

	Close() error
}

// WriteSpec describes one table write.
type WriteSpec struct {
	Name   string
	Table  *Table
	Policy ConflictPolicy

	// Exists is the result of TableExists checked just before the write.
	Exists bool

	// BatchSize is the number of rows per round trip.
	BatchSize int

	// Written is called with the running total of rows written.
	Written func(rows int)
}

var (
	registry   = make(map[DBKind]Dialect)
	registryMu sync.RWMutex
)

// Register adds a dialect to the registry.
// Panics if a dialect of the same kind is already registered.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[d.Kind()]; exists {
		panic(fmt.Sprintf("dialect already registered: %s", d.Kind()))
	}
	registry[d.Kind()] = d
}

// Get returns the dialect for kind.
func Get(kind DBKind) (Dialect, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, ok := registry[kind]
	return d, ok
}

// Kinds returns every registered kind, sorted.
func Kinds() []DBKind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]DBKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
