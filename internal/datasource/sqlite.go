package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDataSource is the reference DataSource implementation: SQLite via
// go-sqlite3, queried through sqlx. Grounded on this pack's OCSP responder
// that wires the same driver pair against the same kind of certificate
// status tables.
type SQLiteDataSource struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) a SQLite database at path and wraps
// it as a DataSource.
func Open(path string) (*SQLiteDataSource, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("datasource: opening sqlite database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("datasource: pinging sqlite database %s: %w", path, err)
	}
	return &SQLiteDataSource{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteDataSource) Close() error {
	return s.db.Close()
}

// CreateSchema creates the ISSUER and CERT tables if they do not already
// exist, using the column set from the store schema. It is not part of the
// DataSource contract; it exists so tests and the reference runner can
// stand up a fresh database.
func (s *SQLiteDataSource) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ISSUER (
	ID       INTEGER PRIMARY KEY,
	SUBJECT  TEXT NOT NULL,
	NBEFORE  INTEGER NOT NULL,
	NAFTER   INTEGER NOT NULL,
	S1C      TEXT NOT NULL UNIQUE,
	CERT     TEXT NOT NULL,
	REV_INFO TEXT,
	CRL_INFO TEXT
);
CREATE TABLE IF NOT EXISTS CERT (
	ID      INTEGER PRIMARY KEY,
	IID     INTEGER NOT NULL,
	SN      TEXT NOT NULL,
	REV     INTEGER NOT NULL,
	RR      INTEGER,
	RT      INTEGER,
	RIT     INTEGER,
	LUPDATE INTEGER NOT NULL,
	NBEFORE INTEGER,
	NAFTER  INTEGER,
	HASH    TEXT,
	UNIQUE(IID, SN)
);
`)
	if err != nil {
		return fmt.Errorf("datasource: creating schema: %w", err)
	}
	return nil
}

func (s *SQLiteDataSource) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("datasource: acquiring connection: %w", err)
	}
	return conn, nil
}

func (s *SQLiteDataSource) ReturnConn(conn *sql.Conn) error {
	return conn.Close()
}

func (s *SQLiteDataSource) Prepare(ctx context.Context, conn *sql.Conn, query string) (*sql.Stmt, error) {
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, s.Translate(query, err)
	}
	return stmt, nil
}

func (s *SQLiteDataSource) GetMax(ctx context.Context, conn *sql.Conn, table, column string) (int64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s),0) FROM %s", column, table)
	var max int64
	if err := conn.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return 0, s.Translate(query, err)
	}
	return max, nil
}

func (s *SQLiteDataSource) Exec(ctx context.Context, conn *sql.Conn, query string) (int64, error) {
	result, err := conn.ExecContext(ctx, query)
	if err != nil {
		return 0, s.Translate(query, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, s.Translate(query, err)
	}
	return n, nil
}

func (s *SQLiteDataSource) Translate(query string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Query: query, Err: err}
}

func (s *SQLiteDataSource) BuildSelectFirst(n int, coreQuery string) string {
	return "SELECT " + coreQuery + " LIMIT " + strconv.Itoa(n)
}
