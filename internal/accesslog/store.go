// Package accesslog keeps a record of served requests in a SQLite database.
package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Entry struct {
	Time       time.Time
	RequestID  string
	Method     string
	URL        string
	Status     int
	Duration   time.Duration
	RemoteAddr string
}

type Store struct {
	conn *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS access_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		request_id TEXT NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		status INTEGER NOT NULL,
		duration_us INTEGER NOT NULL,
		remote_addr TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_access_log_ts ON access_log(ts DESC);
`

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create access log directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}
	// one writer; an in-memory database also lives on a single connection
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize access log schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO access_log (ts, request_id, method, url, status, duration_us, remote_addr)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC().Format(time.RFC3339Nano), e.RequestID, e.Method, e.URL, e.Status,
		e.Duration.Microseconds(), e.RemoteAddr,
	)
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT ts, request_id, method, url, status, duration_us, remote_addr
		 FROM access_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			ts     string
			micros int64
			remote sql.NullString
		)
		if err := rows.Scan(&ts, &e.RequestID, &e.Method, &e.URL, &e.Status, &micros, &remote); err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
		e.Duration = time.Duration(micros) * time.Microsecond
		e.RemoteAddr = remote.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
