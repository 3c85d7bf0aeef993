package breakpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store persists breakpoint blobs keyed by (run, rank, step), backed by
// SQLite — one file per cluster, shared across ranks when the store's
// path lives on a filesystem every rank can reach.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) a breakpoint store at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("breakpoint: create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("breakpoint: open store: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("breakpoint: set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("breakpoint: set busy timeout: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS breakpoints (
			run        TEXT NOT NULL,
			rank       INTEGER NOT NULL,
			step       INTEGER NOT NULL,
			node_count INTEGER NOT NULL,
			edge_count INTEGER NOT NULL,
			data       BLOB NOT NULL,
			PRIMARY KEY (run, rank, step)
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("breakpoint: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stores the already-encoded breakpoint blob for (run, rank, step),
// overwriting any prior blob at the same key. nodeCount/edgeCount are
// recorded alongside the opaque blob so Inspect can report them without
// needing the payload type T to decode it.
func (s *Store) Put(ctx context.Context, run string, rank int32, step int64, nodeCount, edgeCount int, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breakpoints (run, rank, step, node_count, edge_count, data) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run, rank, step) DO UPDATE SET node_count = excluded.node_count, edge_count = excluded.edge_count, data = excluded.data
	`, run, rank, step, nodeCount, edgeCount, data)
	if err != nil {
		return fmt.Errorf("breakpoint: put %s/%d/%d: %w", run, rank, step, err)
	}
	return nil
}

// Summary is the metadata Inspect reports for one stored breakpoint,
// without touching its opaque blob.
type Summary struct {
	Run       string
	Rank      int32
	Step      int64
	NodeCount int
	EdgeCount int
}

// Inspect lists every breakpoint recorded for run, across all ranks and
// steps, ascending by rank then step.
func (s *Store) Inspect(ctx context.Context, run string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, step, node_count, edge_count FROM breakpoints
		WHERE run = ? ORDER BY rank ASC, step ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("breakpoint: inspect %s: %w", run, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		s := Summary{Run: run}
		if err := rows.Scan(&s.Rank, &s.Step, &s.NodeCount, &s.EdgeCount); err != nil {
			return nil, fmt.Errorf("breakpoint: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get retrieves the blob for (run, rank, step). found is false if no such
// breakpoint has been stored.
func (s *Store) Get(ctx context.Context, run string, rank int32, step int64) (data []byte, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM breakpoints WHERE run = ? AND rank = ? AND step = ?
	`, run, rank, step)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("breakpoint: get %s/%d/%d: %w", run, rank, step, err)
	}
	return data, true, nil
}

// Steps lists every step recorded for (run, rank), ascending.
func (s *Store) Steps(ctx context.Context, run string, rank int32) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step FROM breakpoints WHERE run = ? AND rank = ? ORDER BY step ASC
	`, run, rank)
	if err != nil {
		return nil, fmt.Errorf("breakpoint: list steps for %s/%d: %w", run, rank, err)
	}
	defer rows.Close()

	var steps []int64
	for rows.Next() {
		var step int64
		if err := rows.Scan(&step); err != nil {
			return nil, fmt.Errorf("breakpoint: scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
