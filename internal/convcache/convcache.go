// Package convcache provides a SQLite-backed cache of external syntax
// conversions. Conversion is the one slow step of a build (a full
// external-process round trip), so converted text is kept across
// process restarts, keyed by a digest of the source text and the
// syntax pair.
package convcache

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversions (
	key         TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	from_syntax TEXT NOT NULL,
	to_syntax   TEXT NOT NULL,
	output      TEXT NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_conversions_path ON conversions(source_path);
`

// Store wraps a sql.DB with conversion-cache operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite cache and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("convcache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("convcache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("convcache: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Get returns the cached converted text for key. The second return is
// false on a miss.
func (s *Store) Get(key string) (string, bool, error) {
	var out string
	err := s.conn.QueryRow(`SELECT output FROM conversions WHERE key = ?`, key).Scan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("convcache: get: %w", err)
	}
	return out, true, nil
}

// Put stores converted text under key, replacing any previous entry.
func (s *Store) Put(key, sourcePath, fromSyntax, toSyntax, output string) error {
	_, err := s.conn.Exec(`
		INSERT INTO conversions (key, source_path, from_syntax, to_syntax, output, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			source_path = excluded.source_path,
			output      = excluded.output,
			updated_at  = excluded.updated_at
	`, key, sourcePath, fromSyntax, toSyntax, output)
	if err != nil {
		return fmt.Errorf("convcache: put: %w", err)
	}
	return nil
}

// Prune removes entries for source paths no longer part of any build.
func (s *Store) Prune(livePaths map[string]struct{}) error {
	rows, err := s.conn.Query(`SELECT DISTINCT source_path FROM conversions`)
	if err != nil {
		return fmt.Errorf("convcache: prune query: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return err
		}
		if _, live := livePaths[p]; !live {
			stale = append(stale, p)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range stale {
		if _, err := s.conn.Exec(`DELETE FROM conversions WHERE source_path = ?`, p); err != nil {
			return fmt.Errorf("convcache: prune delete: %w", err)
		}
	}
	return nil
}
