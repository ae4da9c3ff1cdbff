package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rewired-gh/polyscan/internal/models"
)

const (
	eventsFile = "events_data.json"
	movesFile  = "recent_moves.json"
	statusFile = "status.json"
)

// FileStore keeps three flat JSON documents in one directory. Each save
// writes a temp file and renames it over the previous document.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed. An empty dir defaults to
// $TMPDIR/polyscan.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "polyscan")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) SaveSnapshot(_ context.Context, events []models.EventSnapshot) error {
	if events == nil {
		events = []models.EventSnapshot{}
	}
	return s.write(eventsFile, events)
}

func (s *FileStore) SaveMoves(_ context.Context, moves []models.Move) error {
	if moves == nil {
		moves = []models.Move{}
	}
	return s.write(movesFile, moves)
}

func (s *FileStore) SaveStatus(_ context.Context, status models.Status) error {
	return s.write(statusFile, status)
}

func (s *FileStore) LoadSnapshot(_ context.Context) ([]models.EventSnapshot, error) {
	var events []models.EventSnapshot
	if _, err := s.read(eventsFile, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *FileStore) LoadMoves(_ context.Context) ([]models.Move, error) {
	var moves []models.Move
	if _, err := s.read(movesFile, &moves); err != nil {
		return nil, err
	}
	return moves, nil
}

func (s *FileStore) LoadStatus(_ context.Context) (*models.Status, error) {
	var status models.Status
	found, err := s.read(statusFile, &status)
	if err != nil || !found {
		return nil, err
	}
	return &status, nil
}

func (s *FileStore) Describe(_ context.Context) map[string]any {
	files := make(map[string]any, 3)
	for _, name := range []string{eventsFile, movesFile, statusFile} {
		info := map[string]any{"exists": false}
		if st, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
			info["exists"] = true
			info["size"] = st.Size()
			info["modified"] = models.NewUnixTime(st.ModTime())
		}
		files[name] = info
	}
	return map[string]any{
		"backend":  BackendFile,
		"data_dir": s.dir,
		"files":    files,
	}
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) write(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// read decodes name into v. A missing or empty file reports found=false
// with no error.
func (s *FileStore) read(name string, v any) (found bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return true, nil
}
