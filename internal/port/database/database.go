// Package database defines the source-database inspection port
// (interface). The underlying engine is a black box satisfying five
// operations; the pipeline never assumes a particular dialect beyond
// what the generated SQL targets.
package database

import "context"

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// ForeignKey describes one referential constraint.
type ForeignKey struct {
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// Rows is a generic query result: column names plus stringified cells.
type Rows struct {
	Columns []string   `json:"columns"`
	Values  [][]string `json:"values"`
}

// Inspector is the port interface for source-database access.
type Inspector interface {
	ListTables(ctx context.Context, db string) ([]string, error)
	GetSchema(ctx context.Context, db, table string) ([]Column, error)
	GetSampleRows(ctx context.Context, db, table string, n int) (Rows, error)
	GetForeignKeys(ctx context.Context, db, table string) ([]ForeignKey, error)
	// RunQuery executes arbitrary SQL. Query errors are returned as
	// errors; they are repairable and fed back to the SQL agent.
	RunQuery(ctx context.Context, db, query string) (Rows, error)
}
