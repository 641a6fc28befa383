package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/Guizzs26/go-sync-bridge/pkg/metrics"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// sqlitePragmas make the shared file safe for two processes: WAL for
// concurrent readers, a busy timeout instead of immediate SQLITE_BUSY, and
// IMMEDIATE transactions so every read-modify-write holds the write lock
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// Store is the shared durable store holding the queue, settings and drafts
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// Open connects to the shared store and verifies it answers
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	dialect, err := DialectByName(driver)
	if err != nil {
		return nil, err
	}

	if dialect.Name == SQLite.Name {
		dsn = withSQLitePragmas(dsn)
	}

	conn, err := sql.Open(dialect.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect.Name, err)
	}

	if dialect.Name == SQLite.Name {
		// One writer per process; the busy timeout arbitrates between processes
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else {
		conn.SetMaxOpenConns(8)
		conn.SetMaxIdleConns(2)
	}
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s ping failed: %w", dialect.Name, err)
	}

	logger.Info("Connected to shared store", "dialect", dialect.Name)

	return &Store{db: conn, dialect: dialect, logger: logger}, nil
}

func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") || strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// Migrate applies the embedded schema migrations for the store's dialect
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations/"+s.dialect.Name)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	provider, err := goose.NewProvider(s.dialect.goose, s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to init migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	for _, r := range results {
		s.logger.Info("Applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Dialect reports which backend the store runs on
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Session returns a non-transactional session bound to the connection pool
func (s *Store) Session() *Session {
	return &Session{q: s.db, dialect: s.dialect}
}

// InTx runs fn inside one transaction. Either every write made through the
// session persists, or none does. Lock contention is retried with a linear
// backoff before the error is handed back to the caller.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, sess *Session) error) error {
	const maxRetries = 3
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = withTx(ctx, s.db, func(tx *sql.Tx) error {
			return fn(ctx, &Session{q: tx, dialect: s.dialect, inTx: true})
		})
		if err == nil || !IsContention(err) {
			return err
		}

		metrics.LockRetries.Inc()
		wait := time.Duration(attempt) * 200 * time.Millisecond
		s.logger.Warn("Store lock contention detected, retrying transaction",
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", maxRetries, err)
}

// Ping checks that the store still answers
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the connection pool for administrative statements
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close gracefully shuts down the connection pool
func (s *Store) Close() error {
	s.logger.Info("Closing shared store", "dialect", s.dialect.Name)
	return s.db.Close()
}

// Session groups the table operations over either the pool or a transaction
type Session struct {
	q       DBTX
	dialect Dialect
	inTx    bool
}

// ErrNoTransaction is returned by Savepoint outside of InTx
var ErrNoTransaction = errors.New("savepoint requires a transaction")

// Savepoint runs fn so that a failure undoes only the writes fn made. The
// rest of the transaction stays usable; fn's error is returned as is.
func (s *Session) Savepoint(ctx context.Context, name string, fn func() error) error {
	if !s.inTx {
		return ErrNoTransaction
	}
	if _, err := s.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to open savepoint %s: %w", name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := s.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back to savepoint %s: %w", name, rbErr))
		}
		_, _ = s.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}

	if _, err := s.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

func (s *Session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Session) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}
