package storage

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-chat-widget/internal/repo"
)

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
	DriverMemory = "memory"
)

// OpenOptions selects and locates a backend.
type OpenOptions struct {
	Driver     string
	DBPath     string
	PebblePath string
	Tracing    bool
}

// Open constructs the backend named by o.Driver.
func Open(o OpenOptions) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(o.Driver)) {
	case DriverSQLite, "":
		db, err := repo.OpenSQLite(o.DBPath, repo.OpenOptions{Tracing: o.Tracing, Quiet: true})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return NewSQLiteBackend(db), nil
	case DriverPebble:
		return OpenPebble(o.PebblePath)
	case DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", o.Driver)
	}
}
