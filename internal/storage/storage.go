// Package storage mirrors the scanner's published state (snapshot, move
// history and status) so it survives restarts. Backends are best-effort:
// every save overwrites the previous document, and a missing document
// loads as empty.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rewired-gh/polyscan/internal/models"
)

// Mirror is implemented by every storage backend.
type Mirror interface {
	SaveSnapshot(ctx context.Context, events []models.EventSnapshot) error
	SaveMoves(ctx context.Context, moves []models.Move) error
	SaveStatus(ctx context.Context, status models.Status) error

	// Loads return nil slices (or a nil status) when nothing was saved.
	LoadSnapshot(ctx context.Context) ([]models.EventSnapshot, error)
	LoadMoves(ctx context.Context) ([]models.Move, error)
	LoadStatus(ctx context.Context) (*models.Status, error)

	// Describe reports backend details for the debug endpoint.
	Describe(ctx context.Context) map[string]any
	Close() error
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataDir     string
	DBPath      string
	RedisURL    string
	RedisPrefix string
}

// Open creates the configured backend. BackendNone returns a nil Mirror.
func Open(ctx context.Context, opts Options) (Mirror, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileStore(opts.DataDir)
	case BackendSQLite:
		return NewSQLiteStore(opts.DBPath)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.RedisPrefix)
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
