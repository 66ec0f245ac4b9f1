package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/iro/internal/logging"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

const tokenKey = "auth_token"

// SQLiteStore keeps the token in a small SQLite database so it survives
// between CLI invocations.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
	logger logging.Logger
}

// Open creates the parent directory of path if needed and opens the
// database there.
func Open(path string, logger logging.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("token db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure token db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	s.logger.Debug("token store opened", logging.Field{Key: "path", Value: path})
	return s, nil
}

// NewSQLiteStore applies the schema to db. The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB, logger logging.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "tokenstore"}),
	}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, tokenKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && v == "") {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("tokenstore: empty token")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		tokenKey, token, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.logger.Debug("token saved")
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, tokenKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.logger.Debug("token cleared")
	return nil
}

// Close closes the database if Open created it.
func (s *SQLiteStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
