package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_more.sql":  {Data: []byte("SELECT 2;")},
		"migrations/0001_init.sql":  {Data: []byte("SELECT 1;")},
		"migrations/README.md":      {Data: []byte("notes")},
		"migrations/seed.sql":       {Data: []byte("SELECT 0;")},
		"migrations/x_unnumber.sql": {Data: []byte("SELECT 0;")},
	}
	migs, err := LoadMigrations(fsys, "migrations")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migs) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migs))
	}
	if migs[0].Version != 1 || migs[1].Version != 2 {
		t.Fatalf("unexpected order: %d, %d", migs[0].Version, migs[1].Version)
	}
	if migs[0].SQL != "SELECT 1;" {
		t.Fatalf("unexpected sql %q", migs[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql":  {Data: []byte("SELECT 1;")},
	}
	if _, err := LoadMigrations(fsys, "."); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestMigratorTable(t *testing.T) {
	m := NewMigrator(nil, fstest.MapFS{}, "")
	if got := m.ident(); got != `"schema_migrations"` {
		t.Fatalf("default table = %s", got)
	}
	if got := m.WithTable("notification_schema_migrations").ident(); got != `"notification_schema_migrations"` {
		t.Fatalf("custom table = %s", got)
	}
	if got := m.WithTable("  ").ident(); got != `"notification_schema_migrations"` {
		t.Fatalf("blank name must keep the table, got %s", got)
	}
}
