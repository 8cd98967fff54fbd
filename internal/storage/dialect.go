package storage

import (
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the differences between the SQL backends: placeholder
// syntax, the embedded migration directory and unique-violation detection.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string

	// MigrationDir is the directory under migrations.FS holding this
	// dialect's schema.
	MigrationDir string

	rebind            func(query string) string
	isUniqueViolation func(err error) bool
	uniqueColumn      func(err error) string
}

// Rebind rewrites '?' placeholders into the dialect's syntax.
func (d Dialect) Rebind(query string) string {
	if d.rebind == nil {
		return query
	}
	return d.rebind(query)
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil || d.isUniqueViolation == nil {
		return false
	}
	return d.isUniqueViolation(err)
}

// UniqueViolationColumn names the column behind a unique constraint failure,
// or returns "" when it cannot tell.
func (d Dialect) UniqueViolationColumn(err error) string {
	if !d.IsUniqueViolation(err) || d.uniqueColumn == nil {
		return ""
	}
	return d.uniqueColumn(err)
}

// Postgres is the PostgreSQL dialect backed by lib/pq.
var Postgres = Dialect{
	Name:         "postgres",
	MigrationDir: "postgres",
	rebind:       dollarPlaceholders,
	isUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return stderrors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
	},
	// Inline UNIQUE columns get constraints named <table>_<column>_key.
	uniqueColumn: func(err error) string {
		var pqErr *pq.Error
		if !stderrors.As(err, &pqErr) {
			return ""
		}
		name, ok := strings.CutSuffix(pqErr.Constraint, "_key")
		if !ok || pqErr.Table == "" {
			return ""
		}
		column, _ := strings.CutPrefix(name, pqErr.Table+"_")
		return column
	},
}

// SQLite is the SQLite dialect backed by modernc.org/sqlite.
var SQLite = Dialect{
	Name:         "sqlite",
	MigrationDir: "sqlite",
	isUniqueViolation: func(err error) bool {
		var sqliteErr *sqlite.Error
		if stderrors.As(err, &sqliteErr) {
			code := sqliteErr.Code()
			return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
		}
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
	// "UNIQUE constraint failed: users.email"
	uniqueColumn: func(err error) string {
		_, cols, ok := strings.Cut(err.Error(), "UNIQUE constraint failed: ")
		if !ok {
			return ""
		}
		first, _, _ := strings.Cut(cols, ",")
		_, column, _ := strings.Cut(strings.TrimSpace(first), ".")
		return strings.TrimSpace(column)
	},
}

// dollarPlaceholders turns "a = ? AND b = ?" into "a = $1 AND b = $2".
// Queries in this package never contain a literal '?'.
func dollarPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
