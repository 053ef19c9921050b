package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var dbTracer = otel.Tracer("bankledger.db")

// maxStatementLen caps the statement text recorded on a span.
const maxStatementLen = 256

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	return c
}

// DB is a *sql.DB whose query methods open a span per statement. The
// repositories only go through QueryContext, QueryRowContext and
// ExecContext, so every ledger and transaction statement is traced.
type DB struct {
	*sql.DB
}

// New opens the pool and pings it once before returning.
func New(connStr string, pool PoolConfig) (*DB, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool = pool.withDefaults()
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{sqlDB}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func startSpan(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return dbTracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", extractSQLVerb(query)),
		attribute.String("db.statement", sanitizeQuery(query)),
	))
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// QueryContext runs a traced query.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := startSpan(ctx, "db.Query", query)
	defer span.End()

	rows, err := db.DB.QueryContext(ctx, query, args...)
	recordError(span, err)
	return rows, err
}

// ExecContext runs a traced statement.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := startSpan(ctx, "db.Exec", query)
	defer span.End()

	result, err := db.DB.ExecContext(ctx, query, args...)
	recordError(span, err)
	return result, err
}

// QueryRowContext runs a traced single-row query. sql.Row reports every
// error from Scan, so the span stays open until then.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	ctx, span := startSpan(ctx, "db.QueryRow", query)
	return &tracedRow{row: db.DB.QueryRowContext(ctx, query, args...), span: span}
}

type tracedRow struct {
	row  *sql.Row
	span trace.Span
}

func (r *tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.span == nil {
		return err
	}
	recordError(r.span, err)
	r.span.End()
	r.span = nil
	return err
}

// sanitizeQuery masks literals so bound values never reach a trace: quoted
// strings become '?' and bare numbers become ?. $N placeholders carry no
// data and are kept.
func sanitizeQuery(q string) string {
	var b strings.Builder
	b.Grow(len(q))

	for i := 0; i < len(q); {
		switch ch := q[i]; {
		case ch == '\'':
			b.WriteString("'?'")
			i = skipQuoted(q, i+1)
		case ch == '$':
			end := skipDigits(q, i+1)
			b.WriteString(q[i:end])
			i = end
		case isDigit(ch) && (i == 0 || !isIdentChar(q[i-1])):
			b.WriteByte('?')
			for i < len(q) && (isDigit(q[i]) || q[i] == '.') {
				i++
			}
		default:
			b.WriteByte(ch)
			i++
		}
	}

	s := b.String()
	if len(s) > maxStatementLen {
		return s[:maxStatementLen] + "..."
	}
	return s
}

// skipQuoted returns the index just past the closing quote of a literal
// that starts at i. Doubled quotes are part of the literal.
func skipQuoted(q string, i int) int {
	for i < len(q) {
		if q[i] != '\'' {
			i++
			continue
		}
		if i+1 < len(q) && q[i+1] == '\'' {
			i += 2
			continue
		}
		return i + 1
	}
	return i
}

func skipDigits(q string, i int) int {
	for i < len(q) && isDigit(q[i]) {
		i++
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c) || c == '_'
}

func extractSQLVerb(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
