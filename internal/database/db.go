package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the SQL flavour of the underlying connection.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// Sentinel repository errors.
var (
	ErrNoRows          = sql.ErrNoRows
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrStaleWrite      = errors.New("row changed concurrently")
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs repository statements against a connection or a transaction.
type Queries struct {
	q       querier
	dialect Dialect
}

// DB is the application database handle.
type DB struct {
	*Queries
	conn *sql.DB
	pool *pgxpool.Pool
}

// Tx is a database transaction exposing the same repository methods as DB.
type Tx struct {
	*Queries
	tx *sql.Tx
}

// Open connects to DATABASE_URL. "sqlite://<path>" (or "file:<path>") opens
// a local SQLite database; anything else is handed to pgx.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return OpenSQLite(strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"):
		return OpenSQLite(strings.TrimPrefix(databaseURL, "file:"))
	}

	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return NewFromSQL(stdlib.OpenDBFromPool(pool), Postgres, pool), nil
}

// OpenSQLite opens a SQLite database at path with WAL mode and a busy timeout.
func OpenSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite single writer: every transaction is serialized.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	return NewFromSQL(conn, SQLite, nil), nil
}

// NewFromSQL wraps an existing *sql.DB. pool may be nil.
func NewFromSQL(conn *sql.DB, dialect Dialect, pool *pgxpool.Pool) *DB {
	return &DB{
		Queries: &Queries{q: conn, dialect: dialect},
		conn:    conn,
		pool:    pool,
	}
}

// Dialect returns the SQL flavour in use.
func (d *DB) Dialect() Dialect { return d.dialect }

// Conn exposes the underlying handle.
func (d *DB) Conn() *sql.DB { return d.conn }

// Ping verifies connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close releases the connection (and the pgx pool, if any).
func (d *DB) Close() error {
	err := d.conn.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &Tx{Queries: &Queries{q: sqlTx, dialect: d.dialect}, tx: sqlTx}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (q *Queries) rebind(query string) string {
	if q.dialect != Postgres {
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

// forUpdate appends a row lock where the dialect supports one. SQLite
// transactions are already serialized by the single connection.
func (q *Queries) forUpdate(query string) string {
	if q.dialect == Postgres {
		return query + " FOR UPDATE"
	}
	return query
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.q.ExecContext(ctx, q.rebind(query), args...)
	return res, translate(err)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.rebind(query), args...)
}

// translate maps driver-specific unique violations onto ErrUniqueViolation.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, liteErr.Error())
		}
	}
	return err
}

// expectOne turns a zero-row conditional update into ErrStaleWrite.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleWrite
	}
	return nil
}

// timestamp normalizes times before they are written: UTC, microsecond
// precision (what Postgres keeps).
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timestamp(*t)
}

// scanTime reads timestamps returned either as time.Time (pgx, and SQLite
// columns declared TIMESTAMP) or as text.
type scanTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (s *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		s.Time, s.Valid = time.Time{}, false
		return nil
	case time.Time:
		s.Time, s.Valid = v.UTC(), true
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (s *scanTime) parse(v string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			s.Time, s.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", v)
}

func (s scanTime) ptr() *time.Time {
	if !s.Valid {
		return nil
	}
	t := s.Time
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
