package db

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestSplitStatementsRespectsQuotesAndComments(t *testing.T) {
	script := `
-- seed; with a semicolon in the comment
INSERT INTO categories(id,name) VALUES('a','Keys; fobs');
INSERT INTO categories(id,name) VALUES('b','It''s mine');

CREATE TABLE x (y TEXT)`
	got := SplitStatements(script)
	want := []string{
		"INSERT INTO categories(id,name) VALUES('a','Keys; fobs')",
		"INSERT INTO categories(id,name) VALUES('b','It''s mine')",
		"CREATE TABLE x (y TEXT)",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected split:\n got %#v\nwant %#v", got, want)
	}
}

func TestMigrateIsIdempotentAndSeedsCategories(t *testing.T) {
	sqdb, err := OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })

	if err := Migrate(sqdb, "sqlite"); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(sqdb, "sqlite"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var applied int
	if err := sqdb.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", applied)
	}

	var categories int
	if err := sqdb.QueryRow(`SELECT COUNT(1) FROM categories WHERE is_active=1`).Scan(&categories); err != nil {
		t.Fatalf("count categories: %v", err)
	}
	if categories != 9 {
		t.Fatalf("expected 9 seeded categories, got %d", categories)
	}
}

func TestMigrateUnknownDialect(t *testing.T) {
	sqdb, err := OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := Migrate(sqdb, "oracle"); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestWithParseTime(t *testing.T) {
	cases := map[string]string{
		"u:p@tcp(db:3306)/lf":                 "u:p@tcp(db:3306)/lf?parseTime=true",
		"u:p@tcp(db:3306)/lf?charset=utf8mb4": "u:p@tcp(db:3306)/lf?charset=utf8mb4&parseTime=true",
		"u:p@tcp(db:3306)/lf?parseTime=true":  "u:p@tcp(db:3306)/lf?parseTime=true",
	}
	for in, want := range cases {
		if got := withParseTime(in); got != want {
			t.Fatalf("withParseTime(%q) = %q, want %q", in, got, want)
		}
	}
}
