package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

var identRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Fields maps column names to values for Insert and Update.
type Fields map[string]any

type Store struct {
	db      *sql.DB
	dialect string
}

func New(db *sql.DB, dialect string) *Store {
	if dialect == "" {
		dialect = "sqlite"
	}
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Dialect() string { return s.dialect }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert adds one row and returns its id. A missing "id" field is filled with
// a new UUID.
func (s *Store) Insert(ctx context.Context, table string, fields Fields) (string, error) {
	if !identRx.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	id, _ := fields["id"].(string)
	if id == "" {
		id = uuid.NewString()
		fields["id"] = id
	}
	cols, args, err := columns(fields)
	if err != nil {
		return "", err
	}
	phs := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","), phs)
	if _, err := s.exec(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return "", ErrConflict
		}
		return "", err
	}
	return id, nil
}

// Update sets fields on every row matching where and returns the affected
// row count. where must use ? placeholders bound to whereArgs.
func (s *Store) Update(ctx context.Context, table string, fields Fields, where string, whereArgs ...any) (int64, error) {
	if !identRx.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	if strings.TrimSpace(where) == "" {
		return 0, errors.New("update without predicate")
	}
	cols, args, err := columns(fields)
	if err != nil {
		return 0, err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + "=?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ","), where)
	res, err := s.exec(ctx, q, append(args, whereArgs...)...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, table, where string, whereArgs ...any) (int64, error) {
	if !identRx.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	if strings.TrimSpace(where) == "" {
		return 0, errors.New("delete without predicate")
	}
	res, err := s.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), whereArgs...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *Store) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *Store) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func (s *Store) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	if err := s.queryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != "postgres" {
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

func columns(fields Fields) ([]string, []any, error) {
	if len(fields) == 0 {
		return nil, nil, errors.New("no fields")
	}
	cols := make([]string, 0, len(fields))
	for c := range fields {
		if !identRx.MatchString(c) {
			return nil, nil, fmt.Errorf("invalid column name %q", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = fields[c]
	}
	return cols, args, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// escapeLike escapes LIKE wildcards with '!', used together with ESCAPE '!'.
func escapeLike(v string) string {
	v = strings.ReplaceAll(v, "!", "!!")
	v = strings.ReplaceAll(v, "%", "!%")
	v = strings.ReplaceAll(v, "_", "!_")
	return v
}

func clampLimit(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
