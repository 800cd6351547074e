// Package db persists client state in an embedded DuckDB file.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Path returns the database file location for cfg.
func (c Config) Path() string {
	return filepath.Join(c.DataDir, "duckdb", c.DBName+".duckdb")
}

// Store is a string key-value table on top of DuckDB.
type Store struct {
	db *sql.DB
}

// Open creates the duckdb directory if needed, opens the database and
// makes sure the kv table exists. An empty DataDir opens an in-memory
// database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := ""
	if cfg.DataDir != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path()), 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = cfg.Path()
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// A single connection keeps in-memory databases shared across calls.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &Store{db: conn}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
