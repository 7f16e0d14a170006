// Package database opens the booking store and hides the differences between
// the supported SQL engines.  The handle is constructed once by the
// composition root and injected into repositories and the ledger.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Dialect names a supported SQL engine.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a DB_DRIVER value onto a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// DB is a *sql.DB tagged with the dialect it talks to.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Querier is satisfied by both *sql.DB and *sql.Tx so repository helpers can
// run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options describes how to reach the store.  DSN, when set, is passed to the
// driver untouched; otherwise it is built from the remaining fields.
type Options struct {
	Dialect Dialect
	DSN     string
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
	Path    string // sqlite only
}

// Open connects to the configured engine and verifies the connection.
func Open(opts Options) (*DB, error) {
	switch opts.Dialect {
	case SQLite:
		path := opts.Path
		if opts.DSN != "" {
			path = opts.DSN
		}
		return OpenSQLite(path)
	case Postgres:
		dsn := opts.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
				opts.User, opts.Pass, opts.Host, opts.Port, opts.Name)
		}
		return openPool("pgx", dsn, Postgres)
	default:
		dsn := opts.DSN
		if dsn == "" {
			auth := opts.User
			if opts.Pass != "" {
				auth = fmt.Sprintf("%s:%s", opts.User, opts.Pass)
			}
			// parseTime keeps DATETIME scans working for ad-hoc queries; loc=UTC
			// keeps the server session aligned with stored millis.
			dsn = fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
				auth, opts.Host, opts.Port, opts.Name)
		}
		return openPool("mysql", dsn, MySQL)
	}
}

func openPool(driver, dsn string, dialect Dialect) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// OpenSQLite opens (or creates) a SQLite database file.  Writers are
// serialized: the pool holds a single connection and every transaction
// starts with BEGIN IMMEDIATE.
func OpenSQLite(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{DB: db, Dialect: SQLite}, nil
}

// Rebind rewrites '?' placeholders into the form the dialect expects.
// Queries in this module never contain literal question marks.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ForUpdate returns the row-locking suffix for SELECTs inside a write
// transaction.  SQLite has no row locks; its IMMEDIATE transaction already
// holds the database write lock.
func (d *DB) ForUpdate() string {
	if d.Dialect == SQLite {
		return ""
	}
	return " FOR UPDATE"
}

// InsertID executes an INSERT and returns the generated id column.
func (d *DB) InsertID(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	if d.Dialect == Postgres {
		var id int64
		err := q.QueryRowContext(ctx, d.Rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, d.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// IsUniqueViolation reports whether err is a unique or primary key
// constraint failure on any supported engine.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
