// Package store handles SQLite persistence of scan history.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/eppi/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for scan history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY,
			root TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			candidates INTEGER NOT NULL,
			parsed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			newly_bad INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS scan_replays (
			scan_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			path TEXT NOT NULL,
			player1 TEXT NOT NULL,
			player2 TEXT NOT NULL,
			result INTEGER NOT NULL,
			stage TEXT NOT NULL,
			duration_frames INTEGER,
			played_at TEXT,
			PRIMARY KEY (scan_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scans_finished_at ON scans(finished_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveScan stores a completed scan. Only the replays of the most recent scan
// are kept; earlier scans keep their counters.
func (s *Store) SaveScan(ctx context.Context, rec model.ScanRecord, replays []model.ReplayInfo) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scans (root, finished_at, candidates, parsed, skipped, newly_bad, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Root,
		rec.FinishedAt.Format(time.RFC3339Nano),
		rec.Candidates,
		rec.Parsed,
		rec.Skipped,
		rec.NewlyBad,
		rec.Elapsed.Milliseconds(),
	)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM scan_replays`); err != nil {
		return 0, err
	}

	if len(replays) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO scan_replays (scan_id, position, path, player1, player2, result, stage, duration_frames, played_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, r := range replays {
			var duration sql.NullInt64
			if r.Duration != nil {
				duration = sql.NullInt64{Int64: int64(*r.Duration), Valid: true}
			}
			var playedAt sql.NullString
			if r.Date != nil {
				playedAt = sql.NullString{String: r.Date.Format(time.RFC3339Nano), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, id, i, r.Path, r.Player1.Name, r.Player2.Name, int(r.Result), r.StageName, duration, playedAt); err != nil {
				return 0, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListScans returns up to limit scans, newest first. A limit of 0 or less
// returns every scan.
func (s *Store) ListScans(ctx context.Context, limit int) ([]model.ScanRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, root, finished_at, candidates, parsed, skipped, newly_bad, elapsed_ms
		 FROM scans
		 ORDER BY finished_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var scans []model.ScanRecord
	for rows.Next() {
		var rec model.ScanRecord
		var finishedAt string
		var elapsedMs int64
		if err := rows.Scan(&rec.ID, &rec.Root, &finishedAt, &rec.Candidates, &rec.Parsed, &rec.Skipped, &rec.NewlyBad, &elapsedMs); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, finishedAt)
		if err != nil {
			return nil, err
		}
		rec.FinishedAt = parsed
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		scans = append(scans, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scans, nil
}

// LatestReplays returns the replays of the most recent scan in their stored
// order.
func (s *Store) LatestReplays(ctx context.Context) ([]model.ReplayInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, player1, player2, result, stage, duration_frames, played_at
		 FROM scan_replays
		 ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var replays []model.ReplayInfo
	for rows.Next() {
		var r model.ReplayInfo
		var result int
		var duration sql.NullInt64
		var playedAt sql.NullString
		if err := rows.Scan(&r.Path, &r.Player1.Name, &r.Player2.Name, &result, &r.StageName, &duration, &playedAt); err != nil {
			return nil, err
		}
		r.Result = model.GameResult(result)
		if duration.Valid {
			frames := int(duration.Int64)
			r.Duration = &frames
		}
		if playedAt.Valid {
			parsed, err := time.Parse(time.RFC3339Nano, playedAt.String)
			if err != nil {
				return nil, err
			}
			r.Date = &parsed
		}
		replays = append(replays, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return replays, nil
}
