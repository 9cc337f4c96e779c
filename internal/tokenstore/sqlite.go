package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/projview/projview/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate creates the schema if it does not exist yet.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		expires_at INTEGER
	)`)
	if err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS logins (
		id         TEXT PRIMARY KEY,
		tenant     TEXT NOT NULL,
		user_name  TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create logins table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetToken returns the token stored under key, or nil when absent. No
// expiry check is performed here.
func (s *SQLiteStore) GetToken(ctx context.Context, key string) (*models.Token, error) {
	var value string
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", key, err)
	}

	tok := &models.Token{AccessToken: value}
	if expiresAt.Valid {
		tok.ExpiresAt = time.UnixMilli(expiresAt.Int64)
	}
	return tok, nil
}

// SetToken stores the token under key, replacing any previous value.
func (s *SQLiteStore) SetToken(ctx context.Context, key string, tok *models.Token) error {
	var expiresAt any
	if !tok.ExpiresAt.IsZero() {
		expiresAt = tok.ExpiresAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, tok.AccessToken, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("set token %s: %w", key, err)
	}
	return nil
}

// GetString returns the string stored under key, or "" when absent.
func (s *SQLiteStore) GetString(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// SetString stores a plain string value under key.
func (s *SQLiteStore) SetString(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, NULL)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = NULL`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Clear removes the given keys. Missing keys are not an error.
func (s *SQLiteStore) Clear(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	return nil
}

// RecordLogin appends a login audit entry and returns its ULID.
func (s *SQLiteStore) RecordLogin(ctx context.Context, tenant, userName string) (string, error) {
	id := newULID()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO logins (id, tenant, user_name) VALUES (?, ?, ?)",
		id, tenant, userName,
	)
	if err != nil {
		return "", fmt.Errorf("record login: %w", err)
	}
	return id, nil
}

// LastLogin returns the most recent login entry by insertion order.
func (s *SQLiteStore) LastLogin(ctx context.Context) (string, string, error) {
	var tenant, userName string
	err := s.db.QueryRowContext(ctx,
		"SELECT tenant, user_name FROM logins ORDER BY rowid DESC LIMIT 1",
	).Scan(&tenant, &userName)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("last login: %w", err)
	}
	return tenant, userName, nil
}
