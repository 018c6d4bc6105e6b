package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tilecensus.ai/internal/census"
	"tilecensus.ai/internal/tiles"
)

// startedAtLayout is fixed width so that text order is time order.
const startedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNoRuns is returned by LatestRun on an empty index.
var ErrNoRuns = census.ErrNoReports

// SQLiteIndex keeps the history of census runs. It is a read model only;
// nothing in a run reads it back.
type SQLiteIndex struct {
	db   *sql.DB
	once sync.Once
}

// RunRow is one recorded run without its entries.
type RunRow struct {
	ID            string `json:"id"`
	StartedAt     string `json:"started_at"`
	WorldID       string `json:"world_id"`
	Tick          uint64 `json:"tick"`
	Tiles         int    `json:"tiles"`
	DistinctCodes int    `json:"distinct_codes"`
	Path          string `json:"path"`
	DurationMs    int64  `json:"duration_ms"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			tiles INTEGER NOT NULL,
			distinct_codes INTEGER NOT NULL,
			path TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
		`CREATE TABLE IF NOT EXISTS run_entries (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			rank INTEGER NOT NULL,
			code TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (run_id, rank)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_entries_code ON run_entries(code);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

// Consume implements census.Sink.
func (s *SQLiteIndex) Consume(ctx context.Context, r *census.Report) error {
	return s.RecordRun(ctx, r)
}

func (s *SQLiteIndex) RecordRun(ctx context.Context, r *census.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(id,started_at,world_id,tick,tiles,distinct_codes,path,duration_ms) VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET started_at=excluded.started_at, world_id=excluded.world_id, tick=excluded.tick,
			tiles=excluded.tiles, distinct_codes=excluded.distinct_codes, path=excluded.path, duration_ms=excluded.duration_ms`,
		r.ID,
		r.StartedAt.UTC().Format(startedAtLayout),
		r.WorldID,
		int64(r.Tick),
		r.Tiles,
		r.Distinct(),
		r.Path,
		r.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_entries WHERE run_id=?`, r.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_entries(run_id,rank,code,count) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range r.Entries {
		if _, err := stmt.ExecContext(ctx, r.ID, i+1, string(e.Code), e.Count); err != nil {
			return fmt.Errorf("insert entry %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

// Runs lists recorded runs, newest first.
func (s *SQLiteIndex) Runs(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,started_at,world_id,tick,tiles,distinct_codes,path,duration_ms FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var tick int64
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.WorldID, &tick, &r.Tiles, &r.DistinctCodes, &r.Path, &r.DurationMs); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Entries returns the ranked entries of one run.
func (s *SQLiteIndex) Entries(ctx context.Context, runID string) ([]census.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code,count FROM run_entries WHERE run_id=? ORDER BY rank`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []census.Entry{}
	for rows.Next() {
		var code string
		var e census.Entry
		if err := rows.Scan(&code, &e.Count); err != nil {
			return nil, err
		}
		e.Code = tiles.Code(code)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestRun rebuilds the most recent report from the index.
func (s *SQLiteIndex) LatestRun(ctx context.Context) (*census.Report, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	return s.report(ctx, runs[0])
}

func (s *SQLiteIndex) report(ctx context.Context, row RunRow) (*census.Report, error) {
	started, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("run %s: started_at: %w", row.ID, err)
	}
	entries, err := s.Entries(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	return &census.Report{
		ID:        row.ID,
		WorldID:   row.WorldID,
		Tick:      row.Tick,
		StartedAt: started,
		Duration:  time.Duration(row.DurationMs) * time.Millisecond,
		Tiles:     row.Tiles,
		Entries:   entries,
		Path:      row.Path,
	}, nil
}

// CodeHistory returns how often code appeared in each recorded run, oldest
// first. Runs where the code was absent are omitted.
func (s *SQLiteIndex) CodeHistory(ctx context.Context, code tiles.Code) ([]CodeSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id,r.started_at,e.count FROM run_entries e JOIN runs r ON r.id=e.run_id WHERE e.code=? ORDER BY r.started_at, r.id`, string(code))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CodeSample
	for rows.Next() {
		var c CodeSample
		if err := rows.Scan(&c.RunID, &c.StartedAt, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type CodeSample struct {
	RunID     string `json:"run_id"`
	StartedAt string `json:"started_at"`
	Count     int    `json:"count"`
}
