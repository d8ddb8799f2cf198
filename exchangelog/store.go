package exchangelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Exchange is one recorded request/response pair with the text model.
type Exchange struct {
	ID        int64     `json:"id"`
	Op        string    `json:"op"`
	Provider  string    `json:"provider"`
	System    string    `json:"system"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists exchanges in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create exchange log directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open exchange log: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		op TEXT NOT NULL,
		provider TEXT NOT NULL,
		system TEXT,
		prompt TEXT NOT NULL,
		response TEXT,
		error TEXT,
		elapsed_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON exchanges(created_at);
	CREATE INDEX IF NOT EXISTS idx_exchanges_op ON exchanges(op);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate exchange log: %w", err)
	}
	return nil
}

// Record inserts e and returns its id. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Exchange) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (op, provider, system, prompt, response, error, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Op, e.Provider, e.System, e.Prompt, e.Response, e.Error, e.ElapsedMS, e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("record exchange: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit exchanges, newest first. An empty op matches all.
func (s *Store) Recent(ctx context.Context, op string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, op, provider, COALESCE(system, ''), prompt, COALESCE(response, ''),
			COALESCE(error, ''), elapsed_ms, created_at
		FROM exchanges
		WHERE ? = '' OR op = ?
		ORDER BY id DESC
		LIMIT ?
	`, op, op, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.ID, &e.Op, &e.Provider, &e.System, &e.Prompt, &e.Response,
			&e.Error, &e.ElapsedMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of recorded exchanges.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges`).Scan(&n)
	return n, err
}
