package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rewired-gh/polyscan/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore mirrors scanner state into a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates the database at dbPath.
// An empty dbPath defaults to $TMPDIR/polyscan/data.db.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "polyscan", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshot (
			position  INTEGER PRIMARY KEY,
			event_id  TEXT NOT NULL,
			document  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS moves (
			seq         INTEGER PRIMARY KEY,
			id          TEXT NOT NULL UNIQUE,
			event_id    TEXT NOT NULL,
			market_id   TEXT NOT NULL,
			magnitude   REAL NOT NULL,
			detected_at INTEGER NOT NULL,
			document    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_moves_detected_at ON moves(detected_at)`,
		`CREATE TABLE IF NOT EXISTS status (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			document    TEXT NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot replaces the snapshot table in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, events []models.EventSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot (position, event_id, document) VALUES (?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		doc, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", ev.EventID, err)
		}
		if _, err := stmt.ExecContext(ctx, i, ev.EventID, string(doc)); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", ev.EventID, err)
		}
	}
	return tx.Commit()
}

// SaveMoves replaces the moves table in one transaction, preserving order.
func (s *SQLiteStore) SaveMoves(ctx context.Context, moves []models.Move) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM moves`); err != nil {
		return fmt.Errorf("failed to clear moves: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO moves (seq, id, event_id, market_id, magnitude, detected_at, document)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare move insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range moves {
		doc, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode move %s: %w", m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			i, m.ID, m.EventID, m.MarketID, m.Magnitude, m.Time.UnixMilli(), string(doc),
		); err != nil {
			return fmt.Errorf("failed to insert move %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// SaveStatus upserts the single status row.
func (s *SQLiteStore) SaveStatus(ctx context.Context, status models.Status) error {
	doc, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO status (id, document, updated_at) VALUES (1, ?, ?)`,
		string(doc), status.LastUpdate.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]models.EventSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM snapshot ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var events []models.EventSnapshot
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ev models.EventSnapshot
		if err := json.Unmarshal([]byte(doc), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) LoadMoves(ctx context.Context) ([]models.Move, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM moves ORDER BY detected_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query moves: %w", err)
	}
	defer rows.Close()

	var moves []models.Move
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		var m models.Move
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			return nil, fmt.Errorf("failed to decode move: %w", err)
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

func (s *SQLiteStore) LoadStatus(ctx context.Context) (*models.Status, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM status WHERE id = 1`).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load status: %w", err)
	}
	var status models.Status
	if err := json.Unmarshal([]byte(doc), &status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

func (s *SQLiteStore) Describe(ctx context.Context) map[string]any {
	info := map[string]any{
		"backend": BackendSQLite,
		"db_path": s.dbPath,
	}
	for _, table := range []string{"snapshot", "moves", "status"} {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			info[table+"_error"] = err.Error()
			continue
		}
		info[table+"_rows"] = n
	}
	return info
}
