package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shohag/vpnboard/internal/apperrors"
	"github.com/shohag/vpnboard/internal/models"
)

type SQLiteStorage struct {
	path string
	db   *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", apperrors.ErrPersistence, err)
	}
	// SQLite creates the -wal and -shm files with the mode of the main file,
	// so the main file must exist as owner-only before the first write.
	if path != ":memory:" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, fileMode)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", apperrors.ErrPersistence, path, err)
		}
		f.Close()
		if err := os.Chmod(path, fileMode); err != nil {
			return nil, fmt.Errorf("%w: chmod %s: %v", apperrors.ErrPersistence, path, err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{path: path, db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) (bool, error) {
	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'endpoints'`,
	).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("%w: inspect schema: %v", apperrors.ErrPersistence, err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS endpoints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			api_url TEXT NOT NULL,
			added_at INTEGER NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return false, fmt.Errorf("%w: migrate: %v", apperrors.ErrPersistence, err)
		}
	}

	if err := s.restrictFiles(); err != nil {
		return false, err
	}
	return existing == 0, nil
}

// restrictFiles makes the database and its journal files owner-only. They
// all hold connection URLs.
func (s *SQLiteStorage) restrictFiles() error {
	if s.path == ":memory:" {
		return nil
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		err := os.Chmod(p, fileMode)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: chmod %s: %v", apperrors.ErrPersistence, p, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) ListEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, api_url, added_at FROM endpoints ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: list endpoints: %v", apperrors.ErrPersistence, err)
	}
	defer rows.Close()

	eps := []models.Endpoint{}
	for rows.Next() {
		var ep models.Endpoint
		if err := rows.Scan(&ep.ID, &ep.Name, &ep.ConnectionURL, &ep.AddedAt); err != nil {
			return nil, fmt.Errorf("%w: scan endpoint: %v", apperrors.ErrPersistence, err)
		}
		eps = append(eps, ep)
	}
	return eps, rows.Err()
}

func (s *SQLiteStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	var ep models.Endpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_url, added_at FROM endpoints WHERE id = ?`, id,
	).Scan(&ep.ID, &ep.Name, &ep.ConnectionURL, &ep.AddedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get endpoint: %v", apperrors.ErrPersistence, err)
	}
	return &ep, nil
}

func (s *SQLiteStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, name, api_url, added_at) VALUES (?, ?, ?, ?)`,
		ep.ID, ep.Name, ep.ConnectionURL, ep.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: create endpoint: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteStorage) RenameEndpoint(ctx context.Context, id, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE endpoints SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return false, fmt.Errorf("%w: rename endpoint: %v", apperrors.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rename endpoint: %v", apperrors.ErrPersistence, err)
	}
	return n > 0, nil
}

func (s *SQLiteStorage) DeleteEndpoint(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete endpoint: %v", apperrors.ErrPersistence, err)
	}
	return nil
}
