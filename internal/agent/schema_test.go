package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/VizForge/internal/port/database"
)

type fakeInspector struct {
	listCalls int
	tables    []string
	columns   map[string][]database.Column
	fks       map[string][]database.ForeignKey
	samples   map[string]database.Rows
}

func (f *fakeInspector) ListTables(_ context.Context, _ string) ([]string, error) {
	f.listCalls++
	return f.tables, nil
}

func (f *fakeInspector) GetSchema(_ context.Context, _, table string) ([]database.Column, error) {
	return f.columns[table], nil
}

func (f *fakeInspector) GetSampleRows(_ context.Context, _, table string, _ int) (database.Rows, error) {
	return f.samples[table], nil
}

func (f *fakeInspector) GetForeignKeys(_ context.Context, _, table string) ([]database.ForeignKey, error) {
	return f.fks[table], nil
}

func (f *fakeInspector) RunQuery(_ context.Context, _, _ string) (database.Rows, error) {
	return database.Rows{}, nil
}

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func newFakeInspector() *fakeInspector {
	return &fakeInspector{
		tables: []string{"users", "orders"},
		columns: map[string][]database.Column{
			"users": {
				{Name: "id", Type: "integer", PrimaryKey: true},
				{Name: "name", Type: "text", Nullable: true},
			},
			"orders": {
				{Name: "id", Type: "integer", PrimaryKey: true},
				{Name: "user_id", Type: "integer"},
			},
		},
		fks: map[string][]database.ForeignKey{
			"orders": {{FromColumn: "user_id", ToTable: "users", ToColumn: "id"}},
		},
		samples: map[string]database.Rows{
			"users": {Columns: []string{"id", "name"}, Values: [][]string{{"1", "ada"}, {"2", "grace"}}},
		},
	}
}

func TestSchemaRendererMarkdown(t *testing.T) {
	r := NewSchemaRenderer(newFakeInspector(), nil, 0)

	md, err := r.Render(context.Background(), "shop")
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"# Database Schema",
		"## Table: `users`",
		"## Table: `orders`",
		"| id | integer | No | Yes |",
		"| name | text | Yes | No |",
		"### Foreign Keys",
		"| user_id | users | id |",
		"### Sample Data",
		"| 1 | ada |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	// users has no foreign keys; its section must precede the FK header.
	if strings.Index(md, "### Foreign Keys") < strings.Index(md, "## Table: `orders`") {
		t.Error("foreign keys rendered for a table without them")
	}
}

func TestSchemaRendererCaches(t *testing.T) {
	insp := newFakeInspector()
	r := NewSchemaRenderer(insp, newMemCache(), time.Minute)

	first, err := r.Render(context.Background(), "shop")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Render(context.Background(), "shop")
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Fatal("cached snapshot differs from fresh render")
	}
	if insp.listCalls != 1 {
		t.Fatalf("inspector hit %d times, want 1", insp.listCalls)
	}
}
