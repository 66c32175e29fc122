// Package sessionstore persists one row per locator run to a small SQLite
// database, letting an operator correlate a flight record or telemetry CSV
// left on disk with when it was captured and how well it performed.
package sessionstore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dabubi/drone-visual-positioning/internal/perr"
)

//go:embed schema.sql
var schemaSQL string

// Session is one row of the sessions table.
type Session struct {
	SessionID   string
	StartedAt   time.Time
	EndedAt     *time.Time
	FixCount    int
	AvgFixRate  float64
	MapPackPath string
}

// DB wraps a sessions database.
type DB struct {
	*sql.DB
}

// Open creates or opens the database at path and ensures the schema exists.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening session database %q: %v", perr.ErrResourceUnavailable, path, err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: setting WAL mode: %v", perr.ErrResourceUnavailable, err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: setting busy_timeout: %v", perr.ErrResourceUnavailable, err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: applying session schema: %v", perr.ErrResourceUnavailable, err)
	}
	return &DB{sqlDB}, nil
}

// BeginSession inserts the opening row for a new run.
func (db *DB) BeginSession(sessionID string, startedAt time.Time, mapPackPath string) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_at, map_pack_path) VALUES (?, ?, ?)`,
		sessionID, startedAt.UTC().Unix(), mapPackPath,
	)
	if err != nil {
		return fmt.Errorf("%w: recording session start: %v", perr.ErrTransient, err)
	}
	return nil
}

// EndSession fills in the closing stats for a run started with BeginSession.
func (db *DB) EndSession(sessionID string, endedAt time.Time, fixCount int, avgFixRate float64) error {
	_, err := db.Exec(
		`UPDATE sessions SET ended_at = ?, fix_count = ?, avg_fix_rate = ? WHERE session_id = ?`,
		endedAt.UTC().Unix(), fixCount, avgFixRate, sessionID,
	)
	if err != nil {
		return fmt.Errorf("%w: recording session end: %v", perr.ErrTransient, err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, most recently started first.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, started_at, ended_at, fix_count, avg_fix_rate, map_pack_path
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying recent sessions: %v", perr.ErrTransient, err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&s.SessionID, &started, &ended, &s.FixCount, &s.AvgFixRate, &s.MapPackPath); err != nil {
			return nil, fmt.Errorf("%w: scanning session row: %v", perr.ErrTransient, err)
		}
		s.StartedAt = time.Unix(started, 0).UTC()
		if ended.Valid {
			t := time.Unix(ended.Int64, 0).UTC()
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
