package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteIndex is a queryable catalogue of saved runs. The run directories
// stay authoritative; the index holds a copy of each run's metadata.
type SQLiteIndex struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteIndex(path string) *SQLiteIndex {
	return &SQLiteIndex{path: path}
}

func (s *SQLiteIndex) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteIndex) Put(ctx context.Context, meta RunMetadata) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, network, integrator, created_at, seed, trajectories, completed, canceled, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			network = excluded.network,
			integrator = excluded.integrator,
			created_at = excluded.created_at,
			seed = excluded.seed,
			trajectories = excluded.trajectories,
			completed = excluded.completed,
			canceled = excluded.canceled,
			payload = excluded.payload
	`, meta.ID, meta.Network, meta.Integrator, meta.Timestamp.UTC().Format(time.RFC3339Nano),
		meta.Seed, meta.Trajectories, meta.Completed, meta.Canceled, payload)
	return err
}

func (s *SQLiteIndex) Get(ctx context.Context, id string) (RunMetadata, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return RunMetadata{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunMetadata{}, false, nil
		}
		return RunMetadata{}, false, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return RunMetadata{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return meta, true, nil
}

// List returns indexed runs newest first. An empty network matches all.
func (s *SQLiteIndex) List(ctx context.Context, network string) ([]RunMetadata, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT payload FROM runs
		WHERE ? = '' OR network = ?
		ORDER BY created_at DESC, id
	`, network, network)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var meta RunMetadata
		if err := json.Unmarshal(payload, &meta); err != nil {
			return nil, err
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

func (s *SQLiteIndex) Delete(ctx context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	return err
}

func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteIndex) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("sqlite index is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			network TEXT NOT NULL,
			integrator TEXT NOT NULL,
			created_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			trajectories INTEGER NOT NULL,
			completed INTEGER NOT NULL,
			canceled INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_network ON runs (network, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
