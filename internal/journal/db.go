// Package journal keeps a SQLite record of bridge sessions and watchdog
// failsafe entries, for answering "what happened on that run" after the fact.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/rclink/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the journal database.
type DB struct {
	*sql.DB
}

// Open opens or creates the journal at path and applies pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// MigrateUp runs all pending migrations. It returns nil when the schema is
// already current.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version, 0 if none.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Session is a journal row for one bridge session.
type Session struct {
	SessionID    string     `json:"session_id"`
	RemoteAddr   string     `json:"remote_addr"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ValidLines   int64      `json:"valid_lines"`
	InvalidLines int64      `json:"invalid_lines"`
	Overflows    int64      `json:"overflows"`
	EndReason    string     `json:"end_reason,omitempty"`
}

// FailsafeEvent is a journal row for one watchdog failsafe entry.
type FailsafeEvent struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Reason     string    `json:"reason"`
	StaleMs    float64   `json:"stale_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InsertSession records the start of a session.
func (db *DB) InsertSession(s Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (session_id, remote_addr, started_at)
		VALUES (?, ?, ?)`,
		s.SessionID, s.RemoteAddr, s.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.SessionID, err)
	}
	return nil
}

// EndSession fills in the end of a session. A session whose start was never
// recorded is inserted whole.
func (db *DB) EndSession(s Session) error {
	var ended any
	if s.EndedAt != nil {
		ended = s.EndedAt.UTC()
	}
	_, err := db.Exec(`
		INSERT INTO sessions (session_id, remote_addr, started_at, ended_at, valid_lines, invalid_lines, overflows, end_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			valid_lines = excluded.valid_lines,
			invalid_lines = excluded.invalid_lines,
			overflows = excluded.overflows,
			end_reason = excluded.end_reason`,
		s.SessionID, s.RemoteAddr, s.StartedAt.UTC(), ended,
		s.ValidLines, s.InvalidLines, s.Overflows, s.EndReason)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", s.SessionID, err)
	}
	return nil
}

// InsertFailsafeEvent records one failsafe entry.
func (db *DB) InsertFailsafeEvent(e FailsafeEvent) error {
	var sessionID any
	if e.SessionID != "" {
		sessionID = e.SessionID
	}
	_, err := db.Exec(`
		INSERT INTO failsafe_events (session_id, reason, stale_ms, occurred_at)
		VALUES (?, ?, ?, ?)`,
		sessionID, e.Reason, e.StaleMs, e.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert failsafe event: %w", err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	rows, err := db.Query(`
		SELECT session_id, remote_addr, started_at, ended_at, valid_lines, invalid_lines, overflows, end_reason
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var ended sql.NullTime
		var reason sql.NullString
		if err := rows.Scan(&s.SessionID, &s.RemoteAddr, &s.StartedAt, &ended,
			&s.ValidLines, &s.InvalidLines, &s.Overflows, &reason); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			s.EndedAt = &t
		}
		s.EndReason = reason.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentFailsafeEvents returns up to limit failsafe events, newest first.
func (db *DB) RecentFailsafeEvents(limit int) ([]FailsafeEvent, error) {
	rows, err := db.Query(`
		SELECT id, session_id, reason, stale_ms, occurred_at
		FROM failsafe_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FailsafeEvent
	for rows.Next() {
		var e FailsafeEvent
		var sessionID sql.NullString
		if err := rows.Scan(&e.ID, &sessionID, &e.Reason, &e.StaleMs, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		out = append(out, e)
	}
	return out, rows.Err()
}
