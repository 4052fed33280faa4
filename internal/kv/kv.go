// Package kv is the durable per-device key-value store backing
// backend.Storage.
package kv

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/rentchat/internal/kv/migrations"
	"github.com/matheus3301/rentchat/internal/store"
	"go.uber.org/zap"
)

// Store is a SQLite key-value table.
type Store struct {
	db     *store.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the store at path and applies migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	result, err := db.MigrateFrom(migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate kv: %w", err)
	}
	if result.Changed {
		logger.Info("kv migrations applied", zap.Uint("version", result.Version))
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves a value. ok is false when the key is absent.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set writes a value.
func (s *Store) Set(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}
