package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-widget/internal/repo"
)

// SQLiteBackend stores each key as one row of the kv_entries table.
type SQLiteBackend struct {
	DB *gorm.DB
}

// NewSQLiteBackend wraps an open, migrated database.
func NewSQLiteBackend(db *gorm.DB) *SQLiteBackend {
	return &SQLiteBackend{DB: db}
}

func (s *SQLiteBackend) Load(ctx context.Context, key string) ([]byte, error) {
	v, err := repo.GetEntry(ctx, s.DB, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *SQLiteBackend) Save(ctx context.Context, key string, value []byte) error {
	return repo.PutEntry(ctx, s.DB, key, value)
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	return repo.DeleteEntry(ctx, s.DB, key)
}

func (s *SQLiteBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	return repo.ListKeys(ctx, s.DB, prefix)
}

// Close releases the underlying connection pool.
func (s *SQLiteBackend) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
