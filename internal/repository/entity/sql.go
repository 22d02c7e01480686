package entity

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
)

const inChunk = 500

type placeholderStyle int

const (
	placeholderQuestion placeholderStyle = iota
	placeholderDollar
)

// SQL reads rows from relational tables.
type SQL struct {
	db    *sql.DB
	style placeholderStyle
}

// OpenSQL connects to dsn with one of the supported drivers and pings it.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	var (
		db    *sql.DB
		style = placeholderQuestion
		err   error
	)
	switch driver {
	case DriverPostgres:
		cfg, perr := pgx.ParseConfig(dsn)
		if perr != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", perr)
		}
		db = stdlib.OpenDB(*cfg)
		style = placeholderDollar
	case DriverSQLite, DriverSQLite3:
		db, err = sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", driver, err)
		}
	default:
		return nil, fmt.Errorf("unknown sql driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &SQL{db: db, style: style}, nil
}

// NewSQL wraps an open database. dollar selects $n placeholders (Postgres).
func NewSQL(db *sql.DB, dollar bool) *SQL {
	s := &SQL{db: db}
	if dollar {
		s.style = placeholderDollar
	}
	return s
}

// Ping checks the connection.
func (s *SQL) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sql source: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close() //nolint:wrapcheck // closing is terminal
}

// Scan returns up to limit rows ordered by key, strictly after the given key value.
// A nil after starts from the beginning.
func (s *SQL) Scan(ctx context.Context, t *Table, after any, limit int) ([]Row, error) {
	args := make([]any, 0, 2)
	q := s.selectFrom(t)
	if after != nil {
		args = append(args, after)
		q += " WHERE " + quoteIdent(t.Key) + " > " + s.placeholder(len(args))
	}
	args = append(args, limit)
	q += " ORDER BY " + quoteIdent(t.Key) + " LIMIT " + s.placeholder(len(args))
	return s.query(ctx, t, q, args...)
}

// ByKeys returns the rows whose key is in keys, in no particular order.
func (s *SQL) ByKeys(ctx context.Context, t *Table, keys []string) ([]Row, error) {
	var out []Row
	for chunk := range slices.Chunk(keys, inChunk) {
		holders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
			holders[i] = s.placeholder(i + 1)
		}
		q := s.selectFrom(t) + " WHERE " + quoteIdent(t.Key) + " IN (" + strings.Join(holders, ", ") + ")"
		rows, err := s.query(ctx, t, q, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// Where returns the rows whose column equals value, ordered by key.
func (s *SQL) Where(ctx context.Context, t *Table, column, value string) ([]Row, error) {
	q := s.selectFrom(t) + " WHERE " + quoteIdent(column) + " = " + s.placeholder(1) +
		" ORDER BY " + quoteIdent(t.Key)
	return s.query(ctx, t, q, value)
}

func (s *SQL) selectFrom(t *Table) string {
	cols := t.selectColumns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return "SELECT " + strings.Join(quoted, ", ") + " FROM " + quoteIdent(t.Name)
}

func (s *SQL) query(ctx context.Context, t *Table, q string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()

	cols := t.selectColumns()
	var out []Row
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = dest[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.Name, err)
	}
	return out, nil
}

func (s *SQL) placeholder(n int) string {
	if s.style == placeholderDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// quoteIdent wraps an identifier already validated against identRe.
func quoteIdent(ident string) string {
	return `"` + ident + `"`
}
