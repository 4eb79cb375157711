package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations
var migrationFS embed.FS

// Migrate applies every embedded migration for the dialect that has not been
// recorded in schema_migrations yet. Files run in name order; each file is
// split into statements and executed one by one.
func Migrate(db *sql.DB, dialect string) error {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations for %s: %w", dialect, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (name VARCHAR(191) PRIMARY KEY, applied_at TIMESTAMP NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		applied, err := isApplied(db, dialect, name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		b, err := migrationFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range SplitStatements(string(b)) {
			if _, err := db.Exec(stmt); err != nil && !isAlreadyExistsErr(err) {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
		if _, err := db.Exec(rebind(dialect, `INSERT INTO schema_migrations(name, applied_at) VALUES(?, ?)`), name, time.Now().UTC()); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func isApplied(db *sql.DB, dialect, name string) (bool, error) {
	var n int
	if err := db.QueryRow(rebind(dialect, `SELECT COUNT(1) FROM schema_migrations WHERE name=?`), name).Scan(&n); err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return n > 0, nil
}

// SplitStatements splits a SQL script on semicolons that are outside string
// literals and "--" comments. Empty statements are dropped.
func SplitStatements(script string) []string {
	var (
		out     []string
		cur     strings.Builder
		quote   rune
		comment bool
	)
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if comment {
			if c == '\n' {
				comment = false
				cur.WriteRune(c)
			}
			continue
		}
		if quote != 0 {
			cur.WriteRune(c)
			if c == quote {
				if i+1 < len(runes) && runes[i+1] == quote {
					cur.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch {
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
			i++
		case c == '\'' || c == '"' || c == '`':
			quote = c
			cur.WriteRune(c)
		case c == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func rebind(dialect, q string) string {
	if dialect != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func isAlreadyExistsErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate key name")
}
