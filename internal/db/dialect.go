package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the differences between the supported shared stores
type Dialect struct {
	Name       string
	driverName string
	goose      goose.Dialect
	// batchLock is appended to queue batch selects
	batchLock string
}

var (
	SQLite = Dialect{
		Name:       "sqlite",
		driverName: "sqlite",
		goose:      goose.DialectSQLite3,
	}
	Postgres = Dialect{
		Name:       "postgres",
		driverName: "pgx",
		goose:      goose.DialectPostgres,
		batchLock:  " FOR UPDATE SKIP LOCKED",
	}
)

// DialectByName resolves the DATABASE_DRIVER setting
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form
func (d Dialect) Rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}

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

// IsContention reports lock conflicts that are worth retrying:
// SQLITE_BUSY/SQLITE_LOCKED, Postgres serialization failures and deadlocks
func IsContention(err error) bool {
	if err == nil {
		return false
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "55P03"
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "could not serialize")
}
