package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/VizForge/internal/port/database"
)

// Inspector implements the database inspection port against PostgreSQL
// information_schema. A task's database reference names a schema within
// the connected database; empty means "public".
type Inspector struct {
	pool *pgxpool.Pool
}

// NewInspector creates an Inspector backed by the given pool.
func NewInspector(pool *pgxpool.Pool) *Inspector {
	return &Inspector{pool: pool}
}

func schemaName(db string) string {
	if db == "" {
		return "public"
	}
	return db
}

// ListTables returns the base tables of the schema in name order.
func (i *Inspector) ListTables(ctx context.Context, db string) ([]string, error) {
	rows, err := i.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, schemaName(db))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// GetSchema returns the table's columns in ordinal order with primary
// key membership resolved.
func (i *Inspector) GetSchema(ctx context.Context, db, table string) ([]database.Column, error) {
	schema := schemaName(db)

	pks, err := i.primaryKeyColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	rows, err := i.pool.Query(ctx,
		`SELECT column_name, data_type, is_nullable = 'YES'
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", table, err)
	}
	defer rows.Close()

	var columns []database.Column
	for rows.Next() {
		var col database.Column
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.PrimaryKey = pks[col.Name]
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (i *Inspector) primaryKeyColumns(ctx context.Context, schema, table string) (map[string]bool, error) {
	rows, err := i.pool.Query(ctx,
		`SELECT kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		 WHERE tc.constraint_type = 'PRIMARY KEY'
		   AND tc.table_schema = $1 AND tc.table_name = $2`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("get primary keys %s: %w", table, err)
	}
	defer rows.Close()

	pks := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		pks[name] = true
	}
	return pks, rows.Err()
}

// GetForeignKeys returns the table's outgoing referential constraints.
func (i *Inspector) GetForeignKeys(ctx context.Context, db, table string) ([]database.ForeignKey, error) {
	rows, err := i.pool.Query(ctx,
		`SELECT kcu.column_name, ccu.table_name, ccu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		 JOIN information_schema.constraint_column_usage ccu
		   ON tc.constraint_name = ccu.constraint_name
		  AND tc.table_schema = ccu.table_schema
		 WHERE tc.constraint_type = 'FOREIGN KEY'
		   AND tc.table_schema = $1 AND tc.table_name = $2`, schemaName(db), table)
	if err != nil {
		return nil, fmt.Errorf("get foreign keys %s: %w", table, err)
	}
	defer rows.Close()

	var fks []database.ForeignKey
	for rows.Next() {
		var fk database.ForeignKey
		if err := rows.Scan(&fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// GetSampleRows returns up to n rows of the table.
func (i *Inspector) GetSampleRows(ctx context.Context, db, table string, n int) (database.Rows, error) {
	ident := pgx.Identifier{schemaName(db), table}.Sanitize()
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", ident, n)

	result, err := queryRows(ctx, i.pool, query)
	if err != nil {
		return database.Rows{}, fmt.Errorf("sample rows %s: %w", table, err)
	}
	return result, nil
}

// RunQuery executes generated SQL inside a transaction whose
// search_path points at the task's schema, so unqualified table names
// resolve the same way they appear in the rendered schema snapshot.
// Query errors come back as errors and are fed to the SQL agent for
// repair.
func (i *Inspector) RunQuery(ctx context.Context, db, query string) (database.Rows, error) {
	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return database.Rows{}, fmt.Errorf("run query: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ident := pgx.Identifier{schemaName(db)}.Sanitize()
	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+ident+", public"); err != nil {
		return database.Rows{}, fmt.Errorf("set search path: %w", err)
	}

	result, err := queryRows(ctx, tx, query)
	if err != nil {
		return database.Rows{}, fmt.Errorf("run query: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Rows{}, fmt.Errorf("run query: %w", err)
	}
	return result, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryRows(ctx context.Context, q querier, query string) (database.Rows, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return database.Rows{}, err
	}
	defer rows.Close()

	var result database.Rows
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, fd.Name)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return database.Rows{}, err
		}
		row := make([]string, len(values))
		for j, v := range values {
			row[j] = stringify(v)
		}
		result.Values = append(result.Values, row)
	}
	return result, rows.Err()
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
