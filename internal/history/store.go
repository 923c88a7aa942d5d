package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/iamgilwell/procguard/internal/process"
)

// Termination is a stored termination outcome.
type Termination struct {
	ID       int64     `json:"id"`
	At       time.Time `json:"at"`
	PID      int       `json:"pid"`
	Name     string    `json:"name"`
	ExePath  string    `json:"exe_path,omitempty"`
	Tier     string    `json:"tier"`
	State    string    `json:"state"`
	Forced   bool      `json:"forced"`
	Tree     bool      `json:"tree"`
	Children int       `json:"children"`
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
}

// Respawn is a stored respawn detection.
type Respawn struct {
	ID          int64     `json:"id"`
	At          time.Time `json:"at"`
	Name        string    `json:"name"`
	OriginalPID int       `json:"original_pid"`
	NewPID      int       `json:"new_pid"`
	NewExePath  string    `json:"new_exe_path,omitempty"`
}

// Store persists termination and respawn history in SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens or creates the history database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS terminations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at INTEGER NOT NULL,
			pid INTEGER NOT NULL,
			name TEXT NOT NULL,
			exe_path TEXT,
			tier TEXT NOT NULL,
			state TEXT NOT NULL,
			forced INTEGER NOT NULL,
			tree INTEGER NOT NULL,
			children INTEGER NOT NULL,
			success INTEGER NOT NULL,
			message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_terminations_name ON terminations(name);

		CREATE TABLE IF NOT EXISTS respawns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at INTEGER NOT NULL,
			name TEXT NOT NULL,
			original_pid INTEGER NOT NULL,
			new_pid INTEGER NOT NULL,
			new_exe_path TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_respawns_name ON respawns(name);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTermination stores a terminal termination outcome. In-progress
// refusals are not history and are skipped.
func (s *Store) RecordTermination(ctx context.Context, o process.Outcome) error {
	if o.State == process.StateInProgress {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO terminations (at, pid, name, exe_path, tier, state, forced, tree, children, success, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.now().UnixNano(), o.PID, o.Name, o.Identity.ExePath, o.Safety.Tier.String(), o.State.String(),
		o.Forced, o.Tree, o.Children, o.Success, o.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting termination: %w", err)
	}
	return nil
}

// RecordRespawn stores a respawn detection.
func (s *Store) RecordRespawn(ctx context.Context, r process.Respawn) error {
	at := r.DetectedAt
	if at.IsZero() {
		at = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO respawns (at, name, original_pid, new_pid, new_exe_path)
		VALUES (?, ?, ?, ?, ?)`,
		at.UnixNano(), r.Name, r.Original.PID, r.New.PID, r.New.ExePath,
	)
	if err != nil {
		return fmt.Errorf("inserting respawn: %w", err)
	}
	return nil
}

// Terminations returns the most recent terminations, newest first. An empty
// name matches every process; otherwise matching is case-insensitive.
func (s *Store) Terminations(ctx context.Context, name string, limit int) ([]Termination, error) {
	query := `SELECT id, at, pid, name, exe_path, tier, state, forced, tree, children, success, message
		FROM terminations`
	args := []any{}
	if name != "" {
		query += ` WHERE lower(name) = ?`
		args = append(args, strings.ToLower(name))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying terminations: %w", err)
	}
	defer rows.Close()

	var out []Termination
	for rows.Next() {
		var t Termination
		var at int64
		var exe, msg sql.NullString
		if err := rows.Scan(&t.ID, &at, &t.PID, &t.Name, &exe, &t.Tier, &t.State,
			&t.Forced, &t.Tree, &t.Children, &t.Success, &msg); err != nil {
			return nil, fmt.Errorf("scanning termination: %w", err)
		}
		t.At = time.Unix(0, at)
		t.ExePath = exe.String
		t.Message = msg.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// Respawns returns the most recent respawn detections, newest first.
func (s *Store) Respawns(ctx context.Context, name string, limit int) ([]Respawn, error) {
	query := `SELECT id, at, name, original_pid, new_pid, new_exe_path FROM respawns`
	args := []any{}
	if name != "" {
		query += ` WHERE lower(name) = ?`
		args = append(args, strings.ToLower(name))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying respawns: %w", err)
	}
	defer rows.Close()

	var out []Respawn
	for rows.Next() {
		var r Respawn
		var at int64
		var exe sql.NullString
		if err := rows.Scan(&r.ID, &at, &r.Name, &r.OriginalPID, &r.NewPID, &exe); err != nil {
			return nil, fmt.Errorf("scanning respawn: %w", err)
		}
		r.At = time.Unix(0, at)
		r.NewExePath = exe.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// RespawnCount returns how many times name has been seen respawning.
func (s *Store) RespawnCount(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM respawns WHERE lower(name) = ?`, strings.ToLower(name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting respawns: %w", err)
	}
	return n, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
