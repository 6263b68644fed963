// Package repo implements the data persistence layer for the SQLite storage
// driver, backed by GORM. This file provides repository functions for the
// KVEntry model: whole-value reads and overwrites keyed by a string.
//
// Error semantics:
//   - A missing key returns ErrNotFound (an alias of gorm.ErrRecordNotFound).
//   - Other driver errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chat-widget/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// GetEntry loads the value stored under key.
func GetEntry(ctx context.Context, db *gorm.DB, key string) ([]byte, error) {
	var e domain.KVEntry
	err := db.WithContext(ctx).Where("storage_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// PutEntry overwrites the value stored under key, inserting the row when it
// does not exist yet.
func PutEntry(ctx context.Context, db *gorm.DB, key string, value []byte) error {
	e := &domain.KVEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(e).Error
}

// DeleteEntry removes key. Deleting a missing key is not an error.
func DeleteEntry(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Where("storage_key = ?", key).Delete(&domain.KVEntry{}).Error
}

// ListKeys returns all keys starting with prefix in ascending order.
func ListKeys(ctx context.Context, db *gorm.DB, prefix string) ([]string, error) {
	var keys []string
	err := db.WithContext(ctx).
		Model(&domain.KVEntry{}).
		Where("storage_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("storage_key ASC").
		Pluck("storage_key", &keys).Error
	return keys, err
}

// escapeLike escapes LIKE wildcards so prefixes match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
