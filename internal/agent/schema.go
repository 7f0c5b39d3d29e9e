package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/VizForge/internal/port/cache"
	"github.com/Strob0t/VizForge/internal/port/database"
)

// DefaultSampleRows is how many rows per table the rendered schema
// includes. Enough for the model to see value shapes, small enough to
// keep prompts bounded.
const DefaultSampleRows = 3

// SchemaRenderer turns a database's structure into the markdown
// document the SQL prompt embeds. Rendering hits the database once per
// table, so snapshots are cached per database reference.
type SchemaRenderer struct {
	inspector  database.Inspector
	cache      cache.Cache
	ttl        time.Duration
	sampleRows int
}

// NewSchemaRenderer creates a renderer. The cache may be nil, in which
// case every call renders fresh.
func NewSchemaRenderer(inspector database.Inspector, c cache.Cache, ttl time.Duration) *SchemaRenderer {
	return &SchemaRenderer{
		inspector:  inspector,
		cache:      c,
		ttl:        ttl,
		sampleRows: DefaultSampleRows,
	}
}

// Render returns the markdown schema snapshot for db.
func (r *SchemaRenderer) Render(ctx context.Context, db string) (string, error) {
	key := "schema:" + db
	if r.cache != nil {
		if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			return string(data), nil
		}
	}

	tables, err := r.inspector.ListTables(ctx, db)
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Database Schema\n\n")
	for _, table := range tables {
		if err := r.renderTable(ctx, &b, db, table); err != nil {
			return "", fmt.Errorf("render table %s: %w", table, err)
		}
	}

	md := b.String()
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, []byte(md), r.ttl); err != nil {
			slog.Debug("schema cache set failed", "db", db, "error", err)
		}
	}
	return md, nil
}

func (r *SchemaRenderer) renderTable(ctx context.Context, b *strings.Builder, db, table string) error {
	columns, err := r.inspector.GetSchema(ctx, db, table)
	if err != nil {
		return err
	}

	fmt.Fprintf(b, "## Table: `%s`\n\n", table)
	b.WriteString("### Columns\n\n")
	b.WriteString("| Name | Type | Nullable | Primary Key |\n")
	b.WriteString("|------|------|----------|-------------|\n")
	for _, col := range columns {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			col.Name, col.Type, yesNo(col.Nullable), yesNo(col.PrimaryKey))
	}
	b.WriteString("\n")

	fks, err := r.inspector.GetForeignKeys(ctx, db, table)
	if err != nil {
		return err
	}
	if len(fks) > 0 {
		b.WriteString("### Foreign Keys\n\n")
		b.WriteString("| From Column | Referenced Table | To Column |\n")
		b.WriteString("|-------------|------------------|-----------|\n")
		for _, fk := range fks {
			fmt.Fprintf(b, "| %s | %s | %s |\n", fk.FromColumn, fk.ToTable, fk.ToColumn)
		}
		b.WriteString("\n")
	}

	sample, err := r.inspector.GetSampleRows(ctx, db, table, r.sampleRows)
	if err != nil {
		return err
	}
	if len(sample.Values) > 0 {
		b.WriteString("### Sample Data\n\n")
		b.WriteString("| " + strings.Join(sample.Columns, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(sample.Columns)) + "\n")
		for _, row := range sample.Values {
			b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	return nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
