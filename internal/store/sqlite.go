package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const settingsKey = "settings"

// SQLiteStore keeps servers and settings in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, "migrations")
}

func (s *SQLiteStore) Servers(ctx context.Context) ([]ServerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ip, port, username, password FROM servers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ServerEntry
	for rows.Next() {
		var e ServerEntry
		if err := rows.Scan(&e.IP, &e.Port, &e.Username, &e.Password); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddServer(ctx context.Context, e ServerEntry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO servers (ip, port, username, password) VALUES (?, ?, ?, ?)`,
		e.IP, e.Port, e.Username, e.Password)
	if err != nil {
		return false, fmt.Errorf("insert server: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert server: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) FindServer(ctx context.Context, ip string, port int, username string) (ServerEntry, bool, error) {
	q := `SELECT ip, port, username, password FROM servers WHERE ip = ? AND port = ?`
	args := []any{ip, port}
	if username != "" {
		q += ` AND username = ?`
		args = append(args, username)
	}
	q += ` ORDER BY id LIMIT 1`

	var e ServerEntry
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&e.IP, &e.Port, &e.Username, &e.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return ServerEntry{}, false, nil
	}
	if err != nil {
		return ServerEntry{}, false, fmt.Errorf("find server: %w", err)
	}
	return e, true, nil
}

func (s *SQLiteStore) Settings(ctx context.Context) (Settings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, settingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("query settings: %w", err)
	}
	settings := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return DefaultSettings(), nil
	}
	return settings, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingsKey, string(raw))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
